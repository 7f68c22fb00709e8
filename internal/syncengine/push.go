package syncengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Record is one row as sent by a device.
type Record map[string]interface{}

// PushRequest is the body of a push.
type PushRequest struct {
	LastSyncAt string              `json:"last_sync_at"`
	Tables     map[string][]Record `json:"tables"`
}

// TableSummary counts the outcome of a push for one table. Deleted counts
// applied deletions, which are also counted as inserted or updated.
type TableSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
}

// PushResult is returned by Push.
type PushResult struct {
	OK        bool                    `json:"ok"`
	CompanyID string                  `json:"company_id"`
	Tables    map[string]TableSummary `json:"tables"`
}

type row struct {
	id        string
	updatedAt time.Time
	deleted   bool
	columns   []string
	values    []interface{}
}

// Push applies the records with last-write-wins per row. The whole push runs in
// one transaction: a bad record rolls back every table.
func (e *Engine) Push(ctx context.Context, a *Access, req PushRequest) (*PushResult, error) {
	started := time.Now()
	res, err := e.push(ctx, a, req)
	e.metrics.RecordSyncCall("push", time.Since(started))
	if err != nil {
		logRejected("Push", err, zap.String("company_id", a.CompanyID), zap.String("device_id", a.DeviceID))
		return nil, err
	}

	var total TableSummary
	for _, s := range res.Tables {
		total.Inserted += s.Inserted
		total.Updated += s.Updated
		total.Deleted += s.Deleted
		total.Skipped += s.Skipped
	}
	e.metrics.RecordSyncRows("push", "inserted", total.Inserted)
	e.metrics.RecordSyncRows("push", "updated", total.Updated)
	e.metrics.RecordSyncRows("push", "deleted", total.Deleted)
	e.metrics.RecordSyncRows("push", "skipped", total.Skipped)

	logger.L().Info("Sync: Push",
		zap.String("company_id", a.CompanyID),
		zap.String("device_id", a.DeviceID),
		zap.Int("tables", len(res.Tables)),
		zap.Int("inserted", total.Inserted),
		zap.Int("updated", total.Updated),
		zap.Int("skipped", total.Skipped))
	return res, nil
}

func (e *Engine) push(ctx context.Context, a *Access, req PushRequest) (*PushResult, error) {
	for name := range req.Tables {
		if _, ok := e.registry.Table(name); !ok {
			return nil, apperr.ErrUnknownTable.WithMessage(fmt.Sprintf("table %q is not syncable", name))
		}
	}

	now := e.store.Now()
	res := &PushResult{OK: true, CompanyID: a.CompanyID, Tables: make(map[string]TableSummary, len(req.Tables))}

	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range e.registry.Tables() {
			records, ok := req.Tables[t.Name]
			if !ok {
				continue
			}
			var sum TableSummary
			for i, rec := range records {
				r, err := sanitize(t, rec, now)
				if err != nil {
					return apperr.ErrBadRecord.WithMessage(fmt.Sprintf("%s[%d]: %s", t.Name, i, err.Error()))
				}
				if err := upsert(tx, t, a.CompanyID, r, now, &sum); err != nil {
					return err
				}
			}
			res.Tables[t.Name] = sum
		}
		return writeLog(tx, a, models.SyncPush, req.LastSyncAt, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// sanitize keeps only registry columns, in declaration order.
func sanitize(t *Table, rec Record, now time.Time) (*row, error) {
	id := recordID(rec[t.IDColumn])
	if id == "" {
		return nil, fmt.Errorf("missing %s", t.IDColumn)
	}

	r := &row{id: id, updatedAt: now, deleted: asBool(rec[ColIsDeleted])}
	if s, ok := rec[ColUpdatedAt].(string); ok {
		if ts, ok := parseSyncTime(s); ok {
			r.updatedAt = ts
		}
	}

	for _, c := range t.Columns {
		v, present := rec[c.Name]
		if !present {
			continue
		}
		val, err := coerce(v, c.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		r.columns = append(r.columns, c.Name)
		r.values = append(r.values, val)
	}
	return r, nil
}

func upsert(tx *gorm.DB, t *Table, companyID string, r *row, now time.Time, sum *TableSummary) error {
	var existing int64
	err := tx.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ?",
		quote(t.Name), quote(ColCompanyID), quote(t.IDColumn)), companyID, r.id).Scan(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.Name, err)
	}

	query, args := upsertSQL(t, companyID, r, now)
	result := tx.Exec(query, args...)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert %s: %w", t.Name, result.Error)
	}

	switch {
	case result.RowsAffected == 0:
		sum.Skipped++
		return nil
	case existing > 0:
		sum.Updated++
	default:
		sum.Inserted++
	}
	if r.deleted {
		sum.Deleted++
	}
	return nil
}

// upsertSQL builds the conditional upsert. Deletions always apply; other rows
// apply only over a null or strictly older updated_at.
func upsertSQL(t *Table, companyID string, r *row, now time.Time) (string, []interface{}) {
	insert := make([]string, 0, len(r.columns)+5)
	insert = append(insert, quote(ColCompanyID), quote(t.IDColumn))
	args := make([]interface{}, 0, len(r.columns)+5)
	args = append(args, companyID, r.id)
	set := make([]string, 0, len(r.columns)+2)

	for i, c := range r.columns {
		insert = append(insert, quote(c))
		args = append(args, r.values[i])
		set = append(set, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
	}
	insert = append(insert, quote(ColIsDeleted), quote(ColCreatedAt), quote(ColUpdatedAt))
	args = append(args, r.deleted, now, r.updatedAt)
	set = append(set,
		fmt.Sprintf("%s = excluded.%s", quote(ColIsDeleted), quote(ColIsDeleted)),
		fmt.Sprintf("%s = excluded.%s", quote(ColUpdatedAt), quote(ColUpdatedAt)))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insert)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s, %s) DO UPDATE SET %s",
		quote(t.Name), strings.Join(insert, ", "), placeholders,
		quote(ColCompanyID), quote(t.IDColumn), strings.Join(set, ", "))

	if !r.deleted {
		stored := quote(t.Name) + "." + quote(ColUpdatedAt)
		query += fmt.Sprintf(" WHERE %s IS NULL OR excluded.%s > %s", stored, quote(ColUpdatedAt), stored)
	}
	return query, args
}
