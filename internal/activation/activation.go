// Package activation allocates device slots on licenses.
//
// Every operation locks the license row for the length of its transaction, so
// concurrent activations of the same license are serialized by the database and
// the count of ACTIVA rows never exceeds max_dispositivos.
package activation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Check outcome codes.
const (
	CodeOK      = "OK"
	CodeBlocked = "BLOCKED"
	CodeExpired = "EXPIRED"
)

// Service runs activation, check, auto-activation, revocation and demo start.
type Service struct {
	store   *license.Store
	metrics *metrics.Registry
}

// NewService creates a Service. m may be nil.
func NewService(store *license.Store, m *metrics.Registry) *Service {
	return &Service{store: store, metrics: m}
}

// Request identifies a license by key within a project.
type Request struct {
	LicenseKey  string
	DeviceID    string
	ProjectID   string
	ProjectCode string
}

// Result is returned by every successful slot allocation.
type Result struct {
	OK              bool                 `json:"ok"`
	LicenseKey      string               `json:"license_key,omitempty"`
	Tipo            models.LicenseTipo   `json:"tipo"`
	FechaInicio     *time.Time           `json:"fecha_inicio"`
	FechaFin        *time.Time           `json:"fecha_fin"`
	MaxDispositivos int                  `json:"max_dispositivos"`
	Usados          int64                `json:"usados"`
	Estado          models.LicenseEstado `json:"estado"`
}

// CheckResult is the outcome of Check. OK is false for BLOCKED and EXPIRED.
type CheckResult struct {
	OK          bool                 `json:"ok"`
	Code        string               `json:"code"`
	Tipo        models.LicenseTipo   `json:"tipo"`
	FechaInicio *time.Time           `json:"fecha_inicio"`
	FechaFin    *time.Time           `json:"fecha_fin"`
	Estado      models.LicenseEstado `json:"estado"`
}

func normalizeRequest(r Request) (string, string, error) {
	key := strings.ToUpper(strings.TrimSpace(r.LicenseKey))
	device := strings.TrimSpace(r.DeviceID)
	if key == "" || device == "" {
		return "", "", apperr.ErrBadRequest.WithMessage("license_key and device_id are required")
	}
	return key, device, nil
}

// Activate binds the device to the license, starting the license on first use.
func (s *Service) Activate(ctx context.Context, r Request) (*Result, error) {
	res, err := s.activate(ctx, r)
	s.metrics.RecordActivation("activate", apperr.CodeOf(err))
	return res, err
}

func (s *Service) activate(ctx context.Context, r Request) (*Result, error) {
	key, device, err := normalizeRequest(r)
	if err != nil {
		return nil, err
	}
	project, err := s.store.ResolveProject(ctx, r.ProjectID, r.ProjectCode)
	if err != nil {
		return nil, err
	}

	var (
		res       *Result
		licenseID string
	)
	err = license.Transaction(ctx, s.store.DB(), func(tx *gorm.DB) error {
		l, err := license.LockByKey(tx, project.ID, key)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return apperr.ErrLicenseNotFound
		}
		licenseID = l.ID
		res, err = allocate(tx, l, device, s.store.Now())
		return err
	})
	if licenseID != "" {
		s.store.Invalidate(ctx, licenseID)
	}
	if err != nil {
		logger.L().Debug("Activation: Activate: rejected",
			zap.String("license_key", key), zap.String("device_id", device), zap.String("code", apperr.CodeOf(err)))
		return nil, err
	}

	logger.L().Info("Activation: Activate",
		zap.String("license_key", key), zap.String("device_id", device), zap.Int64("usados", res.Usados))
	return res, nil
}

// allocate runs the slot allocation on a license locked by tx.
func allocate(tx *gorm.DB, l *models.License, device string, now time.Time) (*Result, error) {
	if l.Estado == models.EstadoBloqueada || l.Estado == models.EstadoVencida {
		return nil, apperr.ErrBlockedOrExpired
	}
	if license.MarkExpired(l, now) {
		if err := license.Persist(tx, l, now); err != nil {
			return nil, err
		}
		return nil, license.Commit(apperr.ErrBlockedOrExpired)
	}

	changed := license.StartIfNeeded(l, now)
	if l.Estado != models.EstadoActiva {
		l.Estado = models.EstadoActiva
		changed = true
	}
	if changed {
		if err := license.Persist(tx, l, now); err != nil {
			return nil, err
		}
	}

	existing, err := findActivation(tx, l.ID, device)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Estado == models.ActivationActiva {
		if err := touch(tx, existing.ID, now); err != nil {
			return nil, err
		}
		used, err := countActive(tx, l.ID)
		if err != nil {
			return nil, err
		}
		return newResult(l, used), nil
	}

	used, err := countActive(tx, l.ID)
	if err != nil {
		return nil, err
	}
	if used >= int64(l.MaxDispositivos) {
		return nil, apperr.ErrMaxDevices.WithMessage(fmt.Sprintf("%d of %d devices in use", used, l.MaxDispositivos))
	}

	if existing != nil {
		err = tx.Model(&models.Activation{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"estado":        models.ActivationActiva,
			"activated_at":  now,
			"last_check_at": now,
		}).Error
	} else {
		err = tx.Create(&models.Activation{
			LicenseID:   l.ID,
			ProjectID:   l.ProjectID,
			DeviceID:    device,
			Estado:      models.ActivationActiva,
			ActivatedAt: now,
			LastCheckAt: &now,
		}).Error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save activation: %w", err)
	}
	return newResult(l, used+1), nil
}

func newResult(l *models.License, used int64) *Result {
	return &Result{
		OK:              true,
		Tipo:            l.Tipo,
		FechaInicio:     l.FechaInicio,
		FechaFin:        l.FechaFin,
		MaxDispositivos: l.MaxDispositivos,
		Usados:          used,
		Estado:          models.EstadoActiva,
	}
}

func findActivation(tx *gorm.DB, licenseID, device string) (*models.Activation, error) {
	var rows []models.Activation
	err := tx.Where("license_id = ? AND device_id = ?", licenseID, device).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load activation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func countActive(tx *gorm.DB, licenseID string) (int64, error) {
	var n int64
	err := tx.Model(&models.Activation{}).
		Where("license_id = ? AND estado = ?", licenseID, models.ActivationActiva).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return n, nil
}

func touch(tx *gorm.DB, activationID string, now time.Time) error {
	err := tx.Model(&models.Activation{}).Where("id = ?", activationID).Update("last_check_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to touch activation: %w", err)
	}
	return nil
}

// Check evaluates an activated device without allocating a slot.
func (s *Service) Check(ctx context.Context, r Request) (*CheckResult, error) {
	res, err := s.check(ctx, r)
	switch {
	case err != nil:
		s.metrics.RecordCheck(apperr.CodeOf(err))
	default:
		s.metrics.RecordCheck(res.Code)
	}
	return res, err
}

func (s *Service) check(ctx context.Context, r Request) (*CheckResult, error) {
	key, device, err := normalizeRequest(r)
	if err != nil {
		return nil, err
	}
	project, err := s.store.ResolveProject(ctx, r.ProjectID, r.ProjectCode)
	if err != nil {
		return nil, err
	}

	var (
		res     *CheckResult
		changed bool
		lid     string
	)
	err = license.Transaction(ctx, s.store.DB(), func(tx *gorm.DB) error {
		l, err := license.LockByKey(tx, project.ID, key)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return apperr.ErrLicenseNotFound
		}
		act, err := findActivation(tx, l.ID, device)
		if err != nil {
			return err
		}
		if act == nil || act.Estado != models.ActivationActiva {
			return apperr.ErrActivationMissing
		}

		now := s.store.Now()
		if err := touch(tx, act.ID, now); err != nil {
			return err
		}

		res = &CheckResult{OK: true, Code: CodeOK}
		switch {
		case l.Estado == models.EstadoBloqueada:
			res.OK, res.Code = false, CodeBlocked
		case license.IsExpired(l, now):
			res.OK, res.Code = false, CodeExpired
			changed = license.MarkExpired(l, now)
		case l.Estado != models.EstadoActiva:
			l.Estado = models.EstadoActiva
			changed = true
		}
		if changed {
			if err := license.Persist(tx, l, now); err != nil {
				return err
			}
			lid = l.ID
		}

		res.Tipo = l.Tipo
		res.FechaInicio = l.FechaInicio
		res.FechaFin = l.FechaFin
		res.Estado = l.Estado
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lid != "" {
		s.store.Invalidate(ctx, lid)
	}
	return res, nil
}

// AutoActivateRequest identifies a device within a project.
type AutoActivateRequest struct {
	DeviceID    string
	ProjectID   string
	ProjectCode string
}

// AutoActivate re-identifies the customer from the device's latest activation and
// allocates a slot on that customer's newest usable license.
func (s *Service) AutoActivate(ctx context.Context, r AutoActivateRequest) (*Result, error) {
	res, err := s.autoActivate(ctx, r)
	s.metrics.RecordActivation("auto_activate", apperr.CodeOf(err))
	return res, err
}

func (s *Service) autoActivate(ctx context.Context, r AutoActivateRequest) (*Result, error) {
	device := strings.TrimSpace(r.DeviceID)
	if device == "" {
		return nil, apperr.ErrBadRequest.WithMessage("device_id is required")
	}
	project, err := s.store.ResolveProject(ctx, r.ProjectID, r.ProjectCode)
	if err != nil {
		return nil, err
	}

	var (
		res *Result
		lid string
	)
	err = license.Transaction(ctx, s.store.DB(), func(tx *gorm.DB) error {
		customerID, err := customerFromHistory(tx, device, project.ID)
		if err != nil {
			return err
		}

		now := s.store.Now()
		rows, err := license.NewestForCustomer(tx, customerID, project.ID)
		if err != nil {
			return err
		}
		sel := license.SelectNewest(rows, now, license.SelectActivatable)
		if sel.Blocked {
			return apperr.ErrBlocked
		}
		if !sel.Found() {
			return apperr.ErrNoActiveLicense
		}

		l, err := license.Lock(tx, sel.License.ID)
		if err != nil {
			return err
		}
		lid = l.ID
		res, err = allocate(tx, l, device, now)
		if err != nil {
			return err
		}
		res.LicenseKey = l.LicenseKey
		return nil
	})
	if lid != "" {
		s.store.Invalidate(ctx, lid)
	}
	if err != nil {
		return nil, err
	}

	logger.L().Info("Activation: AutoActivate",
		zap.String("device_id", device), zap.String("license_key", res.LicenseKey), zap.Int64("usados", res.Usados))
	return res, nil
}

func customerFromHistory(tx *gorm.DB, device, projectID string) (string, error) {
	var last models.Activation
	err := tx.Where("device_id = ? AND project_id = ?", device, projectID).
		Order("activated_at DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.ErrNoHistory
	}
	if err != nil {
		return "", fmt.Errorf("failed to load activation history: %w", err)
	}

	var l models.License
	if err := tx.Select("id", "customer_id").Where("id = ?", last.LicenseID).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.ErrNoHistory
		}
		return "", fmt.Errorf("failed to load license: %w", err)
	}
	if l.CustomerID == nil || *l.CustomerID == "" {
		return "", apperr.ErrNoHistory
	}
	return *l.CustomerID, nil
}

// Revoke flips an activation to REVOCADA, freeing its slot. Revoking twice is a no-op.
func (s *Service) Revoke(ctx context.Context, activationID string) (*models.Activation, error) {
	var act models.Activation
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", activationID).First(&act).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrActivationMissing
		}
		if err != nil {
			return fmt.Errorf("failed to load activation: %w", err)
		}
		if _, err := license.Lock(tx, act.LicenseID); err != nil {
			return err
		}
		if act.Estado == models.ActivationRevocada {
			return nil
		}
		act.Estado = models.ActivationRevocada
		if err := tx.Model(&models.Activation{}).Where("id = ?", act.ID).Update("estado", act.Estado).Error; err != nil {
			return fmt.Errorf("failed to revoke activation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.store.Invalidate(ctx, act.LicenseID)
	s.metrics.RecordTransition("revoke_activation")
	logger.L().Info("Activation: Revoke",
		zap.String("activation_id", act.ID), zap.String("license_id", act.LicenseID), zap.String("device_id", act.DeviceID))
	return &act, nil
}

// List returns the activations of a license, most recent first.
func (s *Service) List(ctx context.Context, licenseID string) ([]models.Activation, error) {
	var n int64
	if err := s.store.DB().WithContext(ctx).Model(&models.License{}).Where("id = ?", licenseID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to look up license: %w", err)
	}
	if n == 0 {
		return nil, apperr.ErrLicenseNotFound
	}

	var rows []models.Activation
	err := s.store.DB().WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("activated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	return rows, nil
}
