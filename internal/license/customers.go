package license

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterInput is sent by a POS installation on first run.
type RegisterInput struct {
	BusinessID   string
	BusinessName string
	Role         string
	OwnerName    string
	Phone        string
	Email        string
	TrialStart   string
	AppVersion   string
}

// RegisterBusiness creates or updates the customer identified by business_id. A
// customer pre-created by an admin is matched by phone, then email, and adopts the
// business_id. trial_start_at is only set once.
func (s *Store) RegisterBusiness(ctx context.Context, in RegisterInput) (*models.Customer, error) {
	businessID := strings.TrimSpace(in.BusinessID)
	name := strings.TrimSpace(in.BusinessName)
	role := strings.TrimSpace(in.Role)
	owner := strings.TrimSpace(in.OwnerName)
	phone := NormalizePhone(in.Phone)
	email := NormalizeEmail(in.Email)

	switch {
	case businessID == "":
		return nil, apperr.ErrBadRequest.WithMessage("business_id is required")
	case name == "":
		return nil, apperr.ErrBadRequest.WithMessage("business_name is required")
	case role == "":
		return nil, apperr.ErrBadRequest.WithMessage("role is required")
	case owner == "":
		return nil, apperr.ErrBadRequest.WithMessage("owner_name is required")
	case phone == "":
		return nil, apperr.ErrBadRequest.WithMessage("phone is required")
	}

	var trialStart *time.Time
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(in.TrialStart)); err == nil {
		t = Normalize(t)
		trialStart = &t
	}

	var out models.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := func() *gorm.DB { return tx.Clauses(clause.Locking{Strength: "UPDATE"}) }

		var rows []models.Customer
		if err := locked().Where("business_id = ?", businessID).Limit(1).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to look up business: %w", err)
		}
		if len(rows) == 0 {
			if err := locked().Where("contacto_telefono = ?", phone).Order("created_at ASC").Limit(1).Find(&rows).Error; err != nil {
				return fmt.Errorf("failed to look up customer: %w", err)
			}
		}
		if len(rows) == 0 && email != "" {
			if err := locked().Where("LOWER(contacto_email) = ?", email).Order("created_at ASC").Limit(1).Find(&rows).Error; err != nil {
				return fmt.Errorf("failed to look up customer: %w", err)
			}
		}

		if len(rows) == 0 {
			out = models.Customer{
				BusinessID:       &businessID,
				NombreNegocio:    name,
				RolNegocio:       role,
				ContactoNombre:   owner,
				ContactoTelefono: phone,
				ContactoEmail:    email,
				TrialStartAt:     trialStart,
				AppVersion:       strings.TrimSpace(in.AppVersion),
			}
			if err := tx.Create(&out).Error; err != nil {
				return fmt.Errorf("failed to create customer: %w", err)
			}
			return nil
		}

		out = rows[0]
		if out.BusinessID != nil && *out.BusinessID != "" && *out.BusinessID != businessID {
			return apperr.ErrBusinessConflict
		}
		out.BusinessID = &businessID
		out.NombreNegocio = name
		out.RolNegocio = role
		out.ContactoNombre = owner
		out.ContactoTelefono = phone
		out.ContactoEmail = email
		if out.TrialStartAt == nil {
			out.TrialStartAt = trialStart
		}
		if v := strings.TrimSpace(in.AppVersion); v != "" {
			out.AppVersion = v
		}
		if err := tx.Save(&out).Error; err != nil {
			return fmt.Errorf("failed to update customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("License: RegisterBusiness", zap.String("business_id", businessID), zap.String("customer_id", out.ID))
	return &out, nil
}

// CustomerByBusinessID loads the customer registered under businessID.
func (s *Store) CustomerByBusinessID(ctx context.Context, businessID string) (*models.Customer, error) {
	var rows []models.Customer
	err := s.db.WithContext(ctx).Where("business_id = ?", strings.TrimSpace(businessID)).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load business: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperr.ErrBusinessNotFound
	}
	return &rows[0], nil
}
