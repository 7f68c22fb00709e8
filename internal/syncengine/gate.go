package syncengine

import (
	"context"
	"strings"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Access is the tenant scope granted by a passing gate.
type Access struct {
	LicenseID string
	CompanyID string
	DeviceID  string
}

// Gate validates (license_key, device_id) and resolves the company. Nothing
// tenant-scoped is read before it passes.
func (e *Engine) Gate(ctx context.Context, licenseKey, deviceID string) (*Access, error) {
	a, err := e.gate(ctx, licenseKey, deviceID)
	if err != nil {
		code := apperr.CodeOf(err)
		if code == "" {
			code = "INTERNAL"
		}
		e.metrics.RecordGate(code)
		logRejected("Gate", err, zap.String("device_id", deviceID))
		return nil, err
	}
	e.metrics.RecordGate(metrics.OK)
	return a, nil
}

func (e *Engine) gate(ctx context.Context, licenseKey, deviceID string) (*Access, error) {
	key := strings.ToUpper(strings.TrimSpace(licenseKey))
	device := strings.TrimSpace(deviceID)
	if key == "" || device == "" {
		return nil, apperr.ErrBadRequest.WithMessage("x-license-key and x-device-id are required")
	}

	var (
		access    *Access
		licenseID string
	)
	err := license.Transaction(ctx, e.store.DB(), func(tx *gorm.DB) error {
		l, err := license.LockByKeyAnyProject(tx, key)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return apperr.ErrLicenseNotFound
		}
		licenseID = l.ID

		var act models.Activation
		res := tx.Where("license_id = ? AND device_id = ? AND estado = ?", l.ID, device, models.ActivationActiva).
			Limit(1).Find(&act)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrLicenseNotActive
		}

		now := e.store.Now()
		if err := tx.Model(&models.Activation{}).Where("id = ?", act.ID).Update("last_check_at", now).Error; err != nil {
			return err
		}

		if l.Estado == models.EstadoBloqueada {
			return apperr.ErrBlocked
		}
		if l.Estado == models.EstadoVencida {
			return license.Commit(apperr.ErrExpired)
		}
		if license.MarkExpired(l, now) {
			if err := license.Persist(tx, l, now); err != nil {
				return err
			}
			return license.Commit(apperr.ErrExpired)
		}
		if l.Estado != models.EstadoActiva {
			l.Estado = models.EstadoActiva
			if err := license.Persist(tx, l, now); err != nil {
				return err
			}
		}

		companyID, err := license.CompanyForLicense(tx, l.ID)
		if err != nil {
			return err
		}
		if companyID == "" {
			return apperr.ErrCompanyNotLinked
		}
		access = &Access{LicenseID: l.ID, CompanyID: companyID, DeviceID: device}
		return nil
	})
	if licenseID != "" {
		e.store.Invalidate(ctx, licenseID)
	}
	if err != nil {
		return nil, err
	}
	return access, nil
}
