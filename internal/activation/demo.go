package activation

import (
	"context"
	"fmt"
	"strings"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DemoRequest registers a business and starts a DEMO license on one device.
type DemoRequest struct {
	NombreNegocio    string
	ContactoNombre   string
	ContactoEmail    string
	ContactoTelefono string
	DeviceID         string
	ProjectID        string
	ProjectCode      string
}

// DemoResult carries the customer and the allocation. Created is false when the
// device already held a valid DEMO.
type DemoResult struct {
	Result
	Customer models.Customer `json:"customer"`
	Created  bool            `json:"-"`
}

// StartDemo finds or creates the customer by contact, then returns the device's
// current DEMO or creates, starts and activates a new one.
func (s *Service) StartDemo(ctx context.Context, r DemoRequest) (*DemoResult, error) {
	res, err := s.startDemo(ctx, r)
	s.metrics.RecordActivation("demo", apperr.CodeOf(err))
	return res, err
}

func (s *Service) startDemo(ctx context.Context, r DemoRequest) (*DemoResult, error) {
	nombre := strings.TrimSpace(r.NombreNegocio)
	device := strings.TrimSpace(r.DeviceID)
	email := license.NormalizeEmail(r.ContactoEmail)
	phone := license.NormalizePhone(r.ContactoTelefono)

	switch {
	case nombre == "":
		return nil, apperr.ErrBadRequest.WithMessage("nombre_negocio is required")
	case device == "":
		return nil, apperr.ErrBadRequest.WithMessage("device_id is required")
	case email == "" && phone == "":
		return nil, apperr.ErrBadRequest.WithMessage("contacto_email or contacto_telefono is required")
	}

	project, err := s.store.ResolveProject(ctx, r.ProjectID, r.ProjectCode)
	if err != nil {
		return nil, err
	}

	out := &DemoResult{}
	err = license.Transaction(ctx, s.store.DB(), func(tx *gorm.DB) error {
		customer, err := findOrCreateCustomer(tx, nombre, strings.TrimSpace(r.ContactoNombre), email, phone)
		if err != nil {
			return err
		}
		out.Customer = *customer

		now := s.store.Now()
		existing, err := currentDemo(tx, customer.ID, project.ID, device)
		if err != nil {
			return err
		}
		if existing != nil && existing.Estado != models.EstadoBloqueada && !license.IsExpired(existing, now) {
			used, err := countActive(tx, existing.ID)
			if err != nil {
				return err
			}
			out.Result = *newResult(existing, used)
			out.Result.Estado = existing.Estado
			out.LicenseKey = existing.LicenseKey
			return nil
		}

		defaults := s.store.Defaults()
		l, err := license.CreateTx(tx, license.CreateInput{
			ProjectID:       project.ID,
			CustomerID:      customer.ID,
			Tipo:            models.TipoDemo,
			DiasValidez:     max(1, defaults.DemoDays),
			MaxDispositivos: max(1, defaults.DemoMaxDevices),
			Notas:           "Auto DEMO (start-demo)",
		}, defaults, s.store.DefaultProject(), now)
		if err != nil {
			return err
		}

		res, err := allocate(tx, l, device, now)
		if err != nil {
			return err
		}
		out.Result = *res
		out.LicenseKey = l.LicenseKey
		out.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("Activation: StartDemo",
		zap.String("customer_id", out.Customer.ID),
		zap.String("device_id", device),
		zap.String("license_key", out.LicenseKey),
		zap.Bool("created", out.Created))
	return out, nil
}

func findOrCreateCustomer(tx *gorm.DB, nombre, contacto, email, phone string) (*models.Customer, error) {
	var rows []models.Customer
	if email != "" {
		if err := tx.Where("LOWER(contacto_email) = ?", email).Order("created_at ASC").Limit(1).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to look up customer: %w", err)
		}
	}
	if len(rows) == 0 && phone != "" {
		if err := tx.Where("contacto_telefono = ?", phone).Order("created_at ASC").Limit(1).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to look up customer: %w", err)
		}
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}

	c := &models.Customer{
		NombreNegocio:    nombre,
		ContactoNombre:   contacto,
		ContactoEmail:    email,
		ContactoTelefono: phone,
	}
	if err := tx.Create(c).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return c, nil
}

func currentDemo(tx *gorm.DB, customerID, projectID, device string) (*models.License, error) {
	var rows []models.License
	err := tx.Model(&models.License{}).
		Select("licenses.*").
		Joins("JOIN license_activations a ON a.license_id = licenses.id").
		Where("licenses.tipo = ? AND licenses.customer_id = ? AND licenses.project_id = ?", models.TipoDemo, customerID, projectID).
		Where("licenses.estado <> ?", models.EstadoEliminada).
		Where("a.device_id = ? AND a.estado = ?", device, models.ActivationActiva).
		Order("licenses.created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up demo license: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
