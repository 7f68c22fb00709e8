package handlers

import (
	"strings"

	"github.com/fullpos/license-server/internal/activation"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/models"
	"github.com/gofiber/fiber/v2"
)

// AdminLicenseHandler is the back-office surface over licenses and activations.
type AdminLicenseHandler struct {
	store       *license.Store
	activations *activation.Service
	files       *licensefile.Service
	metrics     *metrics.Registry
}

func NewAdminLicenseHandler(store *license.Store, activations *activation.Service, files *licensefile.Service, m *metrics.Registry) *AdminLicenseHandler {
	return &AdminLicenseHandler{store: store, activations: activations, files: files, metrics: m}
}

func fail(c *fiber.Ctx, err error) error {
	return middleware.Fail(c, middleware.EnvelopeSuccess, err)
}

func licenseResponse(c *fiber.Ctx, l *models.License) error {
	return c.JSON(fiber.Map{
		"success": true,
		"license": l,
	})
}

// CreateLicenseRequest describes a new license.
type CreateLicenseRequest struct {
	ProjectID       string `json:"project_id"`
	ProjectCode     string `json:"project_code"`
	CustomerID      string `json:"customer_id" validate:"required,uuid"`
	LicenseKey      string `json:"license_key"`
	Tipo            string `json:"tipo" validate:"required"`
	DiasValidez     int    `json:"dias_validez" validate:"gte=0"`
	MaxDispositivos int    `json:"max_dispositivos" validate:"gte=0"`
	Notas           string `json:"notas"`
}

// Create inserts a PENDIENTE license
func (h *AdminLicenseHandler) Create(c *fiber.Ctx) error {
	var req CreateLicenseRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	l, err := h.store.Create(c.UserContext(), license.CreateInput{
		ProjectID:       req.ProjectID,
		ProjectCode:     req.ProjectCode,
		CustomerID:      req.CustomerID,
		LicenseKey:      req.LicenseKey,
		Tipo:            models.LicenseTipo(req.Tipo),
		DiasValidez:     req.DiasValidez,
		MaxDispositivos: req.MaxDispositivos,
		Notas:           req.Notas,
	})
	if err != nil {
		return fail(c, err)
	}
	h.metrics.RecordTransition("create")
	c.Status(fiber.StatusCreated)
	return licenseResponse(c, l)
}

// List returns licenses, newest first
func (h *AdminLicenseHandler) List(c *fiber.Ctx) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 25)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	rows, total, err := h.store.List(c.UserContext(), license.ListFilter{
		Estado:     c.Query("estado"),
		CustomerID: c.Query("customer_id"),
		ProjectID:  c.Query("project_id"),
		Search:     c.Query("search"),
		Page:       page,
		PerPage:    limit,
	})
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// Get returns a single license
func (h *AdminLicenseHandler) Get(c *fiber.Ctx) error {
	l, err := h.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return licenseResponse(c, l)
}

// UpdateLicenseRequest is a partial update; absent fields are left as they are.
type UpdateLicenseRequest struct {
	Tipo            *string `json:"tipo"`
	DiasValidez     *int    `json:"dias_validez" validate:"omitempty,gt=0"`
	MaxDispositivos *int    `json:"max_dispositivos" validate:"omitempty,gt=0"`
	Notas           *string `json:"notas"`
}

// Update patches the descriptive fields of a license
func (h *AdminLicenseHandler) Update(c *fiber.Ctx) error {
	var req UpdateLicenseRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	in := license.UpdateInput{
		DiasValidez:     req.DiasValidez,
		MaxDispositivos: req.MaxDispositivos,
		Notas:           req.Notas,
	}
	if req.Tipo != nil {
		tipo := models.LicenseTipo(strings.ToUpper(strings.TrimSpace(*req.Tipo)))
		in.Tipo = &tipo
	}

	l, err := h.store.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return fail(c, err)
	}
	h.metrics.RecordTransition("update")
	return licenseResponse(c, l)
}

// Delete marks a license ELIMINADA
func (h *AdminLicenseHandler) Delete(c *fiber.Ctx) error {
	if err := h.store.Delete(c.UserContext(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	h.metrics.RecordTransition("delete")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "License deleted",
	})
}

func (h *AdminLicenseHandler) transition(name string, fn func(c *fiber.Ctx, id string) (*models.License, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		l, err := fn(c, c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		h.metrics.RecordTransition(name)
		return licenseResponse(c, l)
	}
}

// Block sets the license BLOQUEADA
func (h *AdminLicenseHandler) Block() fiber.Handler {
	return h.transition("block", func(c *fiber.Ctx, id string) (*models.License, error) {
		return h.store.Block(c.UserContext(), id)
	})
}

// Unblock re-arms a blocked license
func (h *AdminLicenseHandler) Unblock() fiber.Handler {
	return h.transition("unblock", func(c *fiber.Ctx, id string) (*models.License, error) {
		return h.store.Unblock(c.UserContext(), id)
	})
}

// ActivateManual starts the validity window without a device
func (h *AdminLicenseHandler) ActivateManual() fiber.Handler {
	return h.transition("activate_manual", func(c *fiber.Ctx, id string) (*models.License, error) {
		return h.store.ActivateManual(c.UserContext(), id)
	})
}

// ExtendDaysRequest carries the number of days to add.
type ExtendDaysRequest struct {
	Dias int `json:"dias" validate:"required,gt=0"`
}

// ExtendDays adds days to the validity window
func (h *AdminLicenseHandler) ExtendDays() fiber.Handler {
	return h.transition("extend", func(c *fiber.Ctx, id string) (*models.License, error) {
		var req ExtendDaysRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.store.ExtendDays(c.UserContext(), id, req.Dias)
	})
}

type licenseFileRequest struct {
	DeviceID     string `json:"device_id"`
	EnsureActive bool   `json:"ensure_active"`
}

// LicenseFile exports the signed offline file. Parameters come from the query
// string or, on POST, from the body; ?download=1 answers with an attachment.
func (h *AdminLicenseHandler) LicenseFile(c *fiber.Ctx) error {
	req := licenseFileRequest{
		DeviceID:     c.Query("device_id"),
		EnsureActive: queryBool(c, "ensure_active"),
	}
	if c.Method() == fiber.MethodPost {
		var body licenseFileRequest
		if err := parseBody(c, &body); err != nil {
			return fail(c, err)
		}
		if body.DeviceID != "" {
			req.DeviceID = body.DeviceID
		}
		req.EnsureActive = req.EnsureActive || body.EnsureActive
	}

	file, l, err := h.files.Export(c.UserContext(), c.Params("id"), req.DeviceID, req.EnsureActive)
	if err != nil {
		return fail(c, err)
	}

	if queryBool(c, "download") {
		body, err := file.Marshal()
		if err != nil {
			return fail(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+l.LicenseKey+`.lic.json"`)
		return c.Send(body)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"license_file": file,
	})
}

// LinkCompanyRequest names an existing company or a company to create.
type LinkCompanyRequest struct {
	CompanyID string `json:"company_id" validate:"omitempty,uuid"`
	Name      string `json:"name"`
}

// LinkCompany attaches the license to a company so its devices can sync
func (h *AdminLicenseHandler) LinkCompany(c *fiber.Ctx) error {
	var req LinkCompanyRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	company, err := h.store.LinkCompany(c.UserContext(), c.Params("id"), req.CompanyID, req.Name)
	if err != nil {
		return fail(c, err)
	}
	h.metrics.RecordTransition("link_company")
	return c.JSON(fiber.Map{
		"success": true,
		"company": company,
	})
}

// Activations lists the device bindings of a license
func (h *AdminLicenseHandler) Activations(c *fiber.Ctx) error {
	rows, err := h.activations.List(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"activations": rows,
	})
}

// RevokeActivation frees the device slot
func (h *AdminLicenseHandler) RevokeActivation(c *fiber.Ctx) error {
	act, err := h.activations.Revoke(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"activation": act,
	})
}
