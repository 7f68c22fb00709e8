// Package backup keeps the latest opaque JSON snapshots each company uploads.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"github.com/fullpos/license-server/internal/syncengine"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultRetention is the number of backups kept per company.
const DefaultRetention = 10

// History limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

var ErrNoBackups = apperr.ErrNotFound.WithMessage("no backups")

// Service stores backups with per-company retention and an optional off-site mirror.
type Service struct {
	db        *gorm.DB
	retention int
	mirror    Mirror
	metrics   *metrics.Registry
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewService creates a Service. mirror and m may be nil.
func NewService(db *gorm.DB, retention int, mirror Mirror, m *metrics.Registry) *Service {
	if retention < 1 {
		retention = DefaultRetention
	}
	return &Service{db: db, retention: retention, mirror: mirror, metrics: m, now: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Wait blocks until pending mirror uploads finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Saved identifies a stored backup.
type Saved struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a stored backup with its content.
type Snapshot struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	CreatedAt  time.Time       `json:"created_at"`
	BackupJSON json.RawMessage `json:"backup_json"`
}

// Entry is backup metadata without the content.
type Entry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Push stores body for the device and prunes the company to the retention limit
// in the same transaction, holding the company row lock.
func (s *Service) Push(ctx context.Context, a *syncengine.Access, body []byte) (*Saved, error) {
	trimmed := bytes.TrimSpace(body)
	var probe map[string]json.RawMessage
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &probe) != nil {
		return nil, apperr.ErrBadRequest.WithMessage("backup body must be a JSON object")
	}

	// body may be a reused request buffer; the mirror reads it after return
	data := append([]byte(nil), trimmed...)
	b := models.Backup{
		CompanyID:  a.CompanyID,
		DeviceID:   a.DeviceID,
		BackupJSON: datatypes.JSON(data),
		SizeBytes:  len(trimmed),
		CreatedAt:  license.Normalize(s.now()),
	}

	pruned := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Pushes of one company queue on its row so pruning never races.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", a.CompanyID).
			Take(&models.Company{}).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to lock company: %w", err)
		}

		if err := tx.Create(&b).Error; err != nil {
			return fmt.Errorf("failed to store backup: %w", err)
		}

		var ids []string
		err = tx.Model(&models.Backup{}).
			Where("company_id = ?", a.CompanyID).
			Order("created_at DESC").
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if len(ids) <= s.retention {
			return nil
		}
		stale := ids[s.retention:]
		if err := tx.Where("id IN ?", stale).Delete(&models.Backup{}).Error; err != nil {
			return fmt.Errorf("failed to prune backups: %w", err)
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBackup("push", 1)
	s.metrics.RecordBackup("pruned", pruned)
	s.metrics.ObserveBackupSize(b.SizeBytes)
	logger.L().Info("Backup: Push: stored",
		zap.String("company_id", a.CompanyID),
		zap.String("device_id", a.DeviceID),
		zap.Int("size_bytes", b.SizeBytes),
		zap.Int("pruned", pruned))

	if s.mirror != nil {
		s.wg.Add(1)
		go func(b models.Backup) {
			defer s.wg.Done()
			s.upload(b)
		}(b)
	}
	return &Saved{ID: b.ID, CreatedAt: b.CreatedAt}, nil
}

func (s *Service) upload(b models.Backup) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	err := s.mirror.Upload(ctx, b)
	s.metrics.RecordMirror(err == nil)
	if err != nil {
		logger.L().Warn("Backup: Mirror: upload failed", zap.String("backup_id", b.ID), zap.Error(err))
		return
	}
	logger.L().Debug("Backup: Mirror: uploaded", zap.String("backup_id", b.ID))
}

// Pull returns the device's latest backup, else the company's latest from any device.
func (s *Service) Pull(ctx context.Context, a *syncengine.Access) (*Snapshot, error) {
	db := s.db.WithContext(ctx)

	b, err := latest(db.Where("company_id = ? AND device_id = ?", a.CompanyID, a.DeviceID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		b, err = latest(db.Where("company_id = ?", a.CompanyID))
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoBackups
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}

	s.metrics.RecordBackup("pull", 1)
	if b.DeviceID != a.DeviceID {
		logger.L().Info("Backup: Pull: restoring from another device",
			zap.String("company_id", a.CompanyID), zap.String("device_id", a.DeviceID), zap.String("source_device", b.DeviceID))
	}
	return &Snapshot{ID: b.ID, DeviceID: b.DeviceID, CreatedAt: b.CreatedAt, BackupJSON: json.RawMessage(b.BackupJSON)}, nil
}

func latest(q *gorm.DB) (*models.Backup, error) {
	var b models.Backup
	if err := q.Order("created_at DESC").First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ClampLimit applies the history default to 0 and bounds the rest to 1..MaxHistoryLimit.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultHistoryLimit
	case limit < 1:
		return 1
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// History lists the device's backups, newest first, without content.
func (s *Service) History(ctx context.Context, a *syncengine.Access, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.WithContext(ctx).Model(&models.Backup{}).
		Select("id, device_id, created_at").
		Where("company_id = ? AND device_id = ?", a.CompanyID, a.DeviceID).
		Order("created_at DESC").
		Limit(ClampLimit(limit)).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	s.metrics.RecordBackup("history", 1)
	return entries, nil
}
