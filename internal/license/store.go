package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/database"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Defaults are the dias_validez/max_dispositivos applied when a create request omits them.
type Defaults struct {
	DemoDays       int
	DemoMaxDevices int
	FullDays       int
	FullMaxDevices int
}

// DefaultDefaults mirrors the stock license configuration.
var DefaultDefaults = Defaults{DemoDays: 15, DemoMaxDevices: 1, FullDays: 365, FullMaxDevices: 2}

func (d Defaults) forTipo(tipo models.LicenseTipo) (int, int) {
	if tipo == models.TipoFull {
		return d.FullDays, d.FullMaxDevices
	}
	return d.DemoDays, d.DemoMaxDevices
}

// Store persists licenses and runs their transitions under a row lock.
type Store struct {
	db             *gorm.DB
	cache          *database.Cache
	defaults       Defaults
	defaultProject string
	now            func() time.Time
}

// NewStore creates a Store. cache may be nil.
func NewStore(db *gorm.DB, cache *database.Cache, defaults Defaults, defaultProject string) *Store {
	if defaultProject == "" {
		defaultProject = "DEFAULT"
	}
	return &Store{
		db:             db,
		cache:          cache,
		defaults:       defaults,
		defaultProject: strings.ToUpper(defaultProject),
		now:            time.Now,
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store's current time, normalized.
func (s *Store) Now() time.Time {
	return Normalize(s.now())
}

// DB exposes the underlying handle for components sharing the transaction scope.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Defaults returns the configured create defaults.
func (s *Store) Defaults() Defaults {
	return s.defaults
}

// Lock loads a license by id with SELECT ... FOR UPDATE.
func Lock(tx *gorm.DB, id string) (*models.License, error) {
	var l models.License
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock license: %w", err)
	}
	return &l, nil
}

// LockByKey loads a license by key within a project with SELECT ... FOR UPDATE.
func LockByKey(tx *gorm.DB, projectID, key string) (*models.License, error) {
	var l models.License
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ? AND license_key = ?", projectID, key).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock license: %w", err)
	}
	return &l, nil
}

// LockByKeyAnyProject locks the newest license carrying key, regardless of project.
func LockByKeyAnyProject(tx *gorm.DB, key string) (*models.License, error) {
	var l models.License
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("license_key = ?", key).
		Order("created_at DESC").
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock license: %w", err)
	}
	return &l, nil
}

// Persist writes the mutable columns of l.
func Persist(tx *gorm.DB, l *models.License, now time.Time) error {
	l.UpdatedAt = now
	err := tx.Model(&models.License{}).Where("id = ?", l.ID).Updates(map[string]interface{}{
		"tipo":             l.Tipo,
		"dias_validez":     l.DiasValidez,
		"max_dispositivos": l.MaxDispositivos,
		"estado":           l.Estado,
		"fecha_inicio":     l.FechaInicio,
		"fecha_fin":        l.FechaFin,
		"notas":            l.Notas,
		"updated_at":       now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update license: %w", err)
	}
	return nil
}

// ResolveProject finds a project by id, else by code, else the default project.
func ResolveProject(tx *gorm.DB, projectID, projectCode, defaultCode string) (*models.Project, error) {
	var p models.Project
	q := tx.Model(&models.Project{})
	switch {
	case strings.TrimSpace(projectID) != "":
		q = q.Where("id = ?", strings.TrimSpace(projectID))
	case strings.TrimSpace(projectCode) != "":
		q = q.Where("code = ?", strings.ToUpper(strings.TrimSpace(projectCode)))
	default:
		q = q.Where("code = ? OR is_default = ?", strings.ToUpper(defaultCode), true).Order("is_default DESC")
	}
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}
	return &p, nil
}

// ResolveProject resolves a project with the store's default.
func (s *Store) ResolveProject(ctx context.Context, projectID, projectCode string) (*models.Project, error) {
	return ResolveProject(s.db.WithContext(ctx), projectID, projectCode, s.defaultProject)
}

// DefaultProject returns the configured default project code.
func (s *Store) DefaultProject() string {
	return s.defaultProject
}

// NewestForCustomer returns up to ScanLimit licenses of a customer in a project, newest first.
func NewestForCustomer(tx *gorm.DB, customerID, projectID string) ([]models.License, error) {
	var rows []models.License
	err := tx.Where("customer_id = ? AND project_id = ?", customerID, projectID).
		Order("created_at DESC").
		Limit(ScanLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list customer licenses: %w", err)
	}
	return rows, nil
}

// CompanyForLicense returns the company linked to a license, or "" when unlinked.
func CompanyForLicense(tx *gorm.DB, licenseID string) (string, error) {
	var link models.CompanyLicense
	err := tx.Where("license_id = ?", licenseID).Limit(1).Find(&link).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve company: %w", err)
	}
	return link.CompanyID, nil
}

// transition locks the license, applies fn and persists the result in one transaction.
func (s *Store) transition(ctx context.Context, id string, fn func(l *models.License, now time.Time) error) (*models.License, error) {
	var out *models.License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := Lock(tx, id)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return apperr.ErrLicenseNotFound
		}
		now := s.Now()
		if err := fn(l, now); err != nil {
			return err
		}
		if err := Persist(tx, l, now); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateLicense(ctx, id)
	return out, nil
}

// Block sets BLOQUEADA. Dates are untouched.
func (s *Store) Block(ctx context.Context, id string) (*models.License, error) {
	l, err := s.transition(ctx, id, func(l *models.License, _ time.Time) error {
		l.Estado = models.EstadoBloqueada
		return nil
	})
	if err == nil {
		logger.L().Info("License: Block", zap.String("license_id", id))
	}
	return l, err
}

// ActivateManual sets ACTIVA, rearming a fresh window when dates are missing or lapsed.
// Unblocking a license is the same transition.
func (s *Store) ActivateManual(ctx context.Context, id string) (*models.License, error) {
	l, err := s.transition(ctx, id, func(l *models.License, now time.Time) error {
		Rearm(l, now)
		return nil
	})
	if err == nil {
		logger.L().Info("License: ActivateManual", zap.String("license_id", id), zap.Timep("fecha_fin", l.FechaFin))
	}
	return l, err
}

// Unblock is ActivateManual.
func (s *Store) Unblock(ctx context.Context, id string) (*models.License, error) {
	return s.ActivateManual(ctx, id)
}

// ExtendDays adds n days of validity.
func (s *Store) ExtendDays(ctx context.Context, id string, n int) (*models.License, error) {
	if n <= 0 {
		return nil, apperr.ErrBadRequest.WithMessage("days must be greater than zero")
	}
	l, err := s.transition(ctx, id, func(l *models.License, now time.Time) error {
		return Extend(l, n, now)
	})
	if err == nil {
		logger.L().Info("License: ExtendDays", zap.String("license_id", id), zap.Int("days", n), zap.Int("dias_validez", l.DiasValidez))
	}
	return l, err
}

// Delete soft-deletes the license (ELIMINADA is terminal).
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := Lock(tx, id)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return nil
		}
		l.Estado = models.EstadoEliminada
		return Persist(tx, l, s.Now())
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateLicense(ctx, id)
	logger.L().Info("License: Delete", zap.String("license_id", id))
	return nil
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Tipo            *models.LicenseTipo
	DiasValidez     *int
	MaxDispositivos *int
	Notas           *string
}

// Update patches the descriptive fields. Estado only changes through transitions.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*models.License, error) {
	return s.transition(ctx, id, func(l *models.License, _ time.Time) error {
		if in.Tipo != nil {
			if err := validateTipo(*in.Tipo); err != nil {
				return err
			}
			l.Tipo = *in.Tipo
		}
		if in.DiasValidez != nil {
			if err := SetDiasValidez(l, *in.DiasValidez); err != nil {
				return err
			}
		}
		if in.MaxDispositivos != nil {
			if *in.MaxDispositivos <= 0 {
				return apperr.ErrBadRequest.WithMessage("max_dispositivos must be greater than zero")
			}
			l.MaxDispositivos = *in.MaxDispositivos
		}
		if in.Notas != nil {
			l.Notas = *in.Notas
		}
		return nil
	})
}

func validateTipo(t models.LicenseTipo) error {
	if t != models.TipoDemo && t != models.TipoFull {
		return apperr.ErrBadRequest.WithMessage("tipo must be DEMO or FULL")
	}
	return nil
}

// Invalidate drops cached copies of a license after a change made outside the Store.
func (s *Store) Invalidate(ctx context.Context, id string) {
	s.cache.InvalidateLicense(ctx, id)
}
