package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
)

// Row is one exported record keyed by column name.
type Row map[string]interface{}

// PullResult is returned by Pull. ServerTime is the bookmark for the next pull.
type PullResult struct {
	OK         bool             `json:"ok"`
	ServerTime string           `json:"server_time"`
	Tables     map[string][]Row `json:"tables"`
}

// Pull exports every registry row of the company changed after lastSyncAt.
// An absent or unparseable lastSyncAt exports everything.
func (e *Engine) Pull(ctx context.Context, a *Access, lastSyncAt string) (*PullResult, error) {
	started := time.Now()
	serverTime := e.store.Now()

	since, ok := parseSyncTime(lastSyncAt)
	if !ok {
		since = time.Unix(0, 0).UTC()
	}

	res := &PullResult{OK: true, ServerTime: serverTime.Format(TimeLayout), Tables: make(map[string][]Row, len(e.registry.Tables()))}
	total := 0
	for _, t := range e.registry.Tables() {
		rows, err := e.pullTable(ctx, t, a.CompanyID, since)
		if err != nil {
			logRejected("Pull", err, zap.String("company_id", a.CompanyID), zap.String("table", t.Name))
			return nil, err
		}
		res.Tables[t.Name] = rows
		total += len(rows)
	}
	e.metrics.RecordSyncCall("pull", time.Since(started))
	e.metrics.RecordSyncRows("pull", "pulled", total)

	summary := map[string]interface{}{"ok": true, "tables": e.registry.Names()}
	if err := writeLog(e.db(ctx), a, models.SyncPull, lastSyncAt, summary); err != nil {
		logger.L().Warn("Sync: Pull: log failed", zap.String("company_id", a.CompanyID), zap.Error(err))
	}

	logger.L().Info("Sync: Pull",
		zap.String("company_id", a.CompanyID),
		zap.String("device_id", a.DeviceID),
		zap.Time("since", since),
		zap.Int("rows", total))
	return res, nil
}

func (e *Engine) pullTable(ctx context.Context, t *Table, companyID string, since time.Time) ([]Row, error) {
	names := make([]string, 0, len(t.Columns)+5)
	names = append(names, ColCompanyID, t.IDColumn)
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	names = append(names, ColIsDeleted, ColCreatedAt, ColUpdatedAt)

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s > ? ORDER BY %s ASC",
		strings.Join(quoted, ", "), quote(t.Name), quote(ColCompanyID), quote(ColUpdatedAt), quote(ColUpdatedAt))

	rows, err := e.db(ctx).Raw(query, companyID, since).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		dest := scanTargets(t)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}
		r := make(Row, len(names))
		for i, n := range names {
			r[n] = exportValue(dest[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", t.Name, err)
	}
	return out, nil
}

// scanTargets matches the column order built by pullTable.
func scanTargets(t *Table) []interface{} {
	dest := make([]interface{}, 0, len(t.Columns)+5)
	dest = append(dest, new(sql.NullString), new(sql.NullString))
	for _, c := range t.Columns {
		switch c.Kind {
		case Int:
			dest = append(dest, new(sql.NullInt64))
		case Num:
			dest = append(dest, new(sql.NullFloat64))
		case Bool:
			dest = append(dest, new(sql.NullBool))
		default:
			dest = append(dest, new(sql.NullString))
		}
	}
	return append(dest, new(sql.NullBool), new(sql.NullTime), new(sql.NullTime))
}

func exportValue(v interface{}) interface{} {
	switch x := v.(type) {
	case *sql.NullString:
		if x.Valid {
			return x.String
		}
	case *sql.NullInt64:
		if x.Valid {
			return x.Int64
		}
	case *sql.NullFloat64:
		if x.Valid {
			return x.Float64
		}
	case *sql.NullBool:
		if x.Valid {
			return x.Bool
		}
	case *sql.NullTime:
		if x.Valid {
			return x.Time.UTC().Format(TimeLayout)
		}
	}
	return nil
}
