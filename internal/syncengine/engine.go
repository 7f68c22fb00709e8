package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TimeLayout is the ISO-8601 UTC layout used for timestamps in sync payloads.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Engine runs the gate, push and pull against the shared store.
type Engine struct {
	store    *license.Store
	registry *Registry
	metrics  *metrics.Registry
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(store *license.Store, reg *Registry, m *metrics.Registry) *Engine {
	return &Engine{store: store, registry: reg, metrics: m}
}

// Registry returns the tables the engine accepts.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) db(ctx context.Context) *gorm.DB {
	return e.store.DB().WithContext(ctx)
}

// parseSyncTime parses an RFC 3339 timestamp. ok is false for empty or invalid input.
func parseSyncTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return license.Normalize(t), true
}

func writeLog(tx *gorm.DB, g *Access, dir models.SyncDirection, lastSyncAt string, summary interface{}) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode sync summary: %w", err)
	}
	entry := models.SyncLog{
		CompanyID: g.CompanyID,
		LicenseID: g.LicenseID,
		DeviceID:  g.DeviceID,
		Direction: dir,
		Summary:   datatypes.JSON(raw),
	}
	if t, ok := parseSyncTime(lastSyncAt); ok {
		entry.LastSyncAt = &t
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write sync log: %w", err)
	}
	return nil
}

func logRejected(op string, err error, fields ...zap.Field) {
	logger.L().Debug("Sync: "+op+": rejected", append(fields, zap.Error(err))...)
}
