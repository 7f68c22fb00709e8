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
)

const keyAttempts = 6

// CreateInput describes a new license. Zero DiasValidez/MaxDispositivos take the defaults.
type CreateInput struct {
	ProjectID       string
	ProjectCode     string
	CustomerID      string
	LicenseKey      string
	Tipo            models.LicenseTipo
	DiasValidez     int
	MaxDispositivos int
	Notas           string
}

// Create inserts a PENDIENTE license with no dates.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.License, error) {
	var out *models.License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := CreateTx(tx, in, s.defaults, s.defaultProject, s.Now())
		if err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.L().Info("License: Create",
		zap.String("license_id", out.ID), zap.String("license_key", out.LicenseKey), zap.String("tipo", string(out.Tipo)))
	return out, nil
}

// CreateTx inserts a PENDIENTE license inside an existing transaction.
func CreateTx(tx *gorm.DB, in CreateInput, defaults Defaults, defaultProject string, now time.Time) (*models.License, error) {
	tipo := models.LicenseTipo(strings.ToUpper(strings.TrimSpace(string(in.Tipo))))
	if err := validateTipo(tipo); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, apperr.ErrBadRequest.WithMessage("customer_id is required")
	}

	days, maxDevices := defaults.forTipo(tipo)
	if in.DiasValidez != 0 {
		days = in.DiasValidez
	}
	if in.MaxDispositivos != 0 {
		maxDevices = in.MaxDispositivos
	}
	if days <= 0 {
		return nil, apperr.ErrBadRequest.WithMessage("dias_validez must be greater than zero")
	}
	if maxDevices <= 0 {
		return nil, apperr.ErrBadRequest.WithMessage("max_dispositivos must be greater than zero")
	}

	project, err := ResolveProject(tx, in.ProjectID, in.ProjectCode, defaultProject)
	if err != nil {
		return nil, err
	}

	var customers int64
	if err := tx.Model(&models.Customer{}).Where("id = ?", in.CustomerID).Count(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if customers == 0 {
		return nil, apperr.ErrCustomerNotFound
	}

	key := strings.ToUpper(strings.TrimSpace(in.LicenseKey))
	if key != "" {
		taken, err := keyTaken(tx, project.ID, key)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.ErrBadRequest.WithMessage("license_key already exists")
		}
	} else {
		for i := 0; i < keyAttempts && key == ""; i++ {
			candidate, err := GenerateKey(tipo)
			if err != nil {
				return nil, err
			}
			taken, err := keyTaken(tx, project.ID, candidate)
			if err != nil {
				return nil, err
			}
			if !taken {
				key = candidate
			}
		}
		if key == "" {
			return nil, fmt.Errorf("failed to generate a unique license key after %d attempts", keyAttempts)
		}
	}

	customerID := in.CustomerID
	l := &models.License{
		ProjectID:       project.ID,
		CustomerID:      &customerID,
		LicenseKey:      key,
		Tipo:            tipo,
		DiasValidez:     days,
		MaxDispositivos: maxDevices,
		Estado:          models.EstadoPendiente,
		Notas:           in.Notas,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Create(l).Error; err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}
	return l, nil
}

func keyTaken(tx *gorm.DB, projectID, key string) (bool, error) {
	var n int64
	if err := tx.Model(&models.License{}).Where("project_id = ? AND license_key = ?", projectID, key).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check license key: %w", err)
	}
	return n > 0, nil
}

// Get returns a license by id through the read-through cache.
func (s *Store) Get(ctx context.Context, id string) (*models.License, error) {
	l, err := database.ReadThrough(ctx, s.cache, database.CacheKeyLicense+id, database.CacheTTLLicense,
		func(ctx context.Context) (models.License, error) {
			var l models.License
			err := s.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return l, apperr.ErrLicenseNotFound
			}
			if err != nil {
				return l, fmt.Errorf("failed to load license: %w", err)
			}
			return l, nil
		})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListFilter narrows List. Empty fields are ignored.
type ListFilter struct {
	Estado     string
	CustomerID string
	ProjectID  string
	Search     string
	Page       int
	PerPage    int
}

// List returns licenses newest first with the total count before paging.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.License, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 25
	}

	q := s.db.WithContext(ctx).Model(&models.License{})
	if f.Estado != "" {
		q = q.Where("estado = ?", strings.ToUpper(f.Estado))
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Search != "" {
		q = q.Where("license_key LIKE ?", "%"+strings.ToUpper(f.Search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	var rows []models.License
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.PerPage).
		Limit(f.PerPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list licenses: %w", err)
	}
	return rows, total, nil
}

// LinkCompany attaches the license to companyID, or to a new company named name when
// companyID is empty.
func (s *Store) LinkCompany(ctx context.Context, licenseID, companyID, name string) (*models.Company, error) {
	var company models.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := Lock(tx, licenseID)
		if err != nil {
			return err
		}
		if l.Estado == models.EstadoEliminada {
			return apperr.ErrLicenseNotFound
		}

		existing, err := CompanyForLicense(tx, l.ID)
		if err != nil {
			return err
		}
		if existing != "" {
			return apperr.ErrAlreadyLinked
		}

		if companyID != "" {
			err := tx.Where("id = ?", companyID).First(&company).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound.WithMessage("company not found")
			}
			if err != nil {
				return fmt.Errorf("failed to load company: %w", err)
			}
		} else {
			name = strings.TrimSpace(name)
			if name == "" {
				return apperr.ErrBadRequest.WithMessage("company_id or name is required")
			}
			company = models.Company{Name: name, CustomerID: l.CustomerID}
			if err := tx.Create(&company).Error; err != nil {
				return fmt.Errorf("failed to create company: %w", err)
			}
		}

		link := models.CompanyLicense{CompanyID: company.ID, LicenseID: l.ID}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to link company: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.L().Info("License: LinkCompany", zap.String("license_id", licenseID), zap.String("company_id", company.ID))
	return &company, nil
}
