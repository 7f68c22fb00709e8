package handlers

import (
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// BusinessHandler registers POS installations and issues their license tokens.
type BusinessHandler struct {
	store *license.Store
	files *licensefile.Service
	opts  licensefile.BusinessOptions
}

func NewBusinessHandler(store *license.Store, files *licensefile.Service, opts licensefile.BusinessOptions) *BusinessHandler {
	return &BusinessHandler{store: store, files: files, opts: opts}
}

// RegisterBusinessRequest is sent by a POS on first run.
type RegisterBusinessRequest struct {
	BusinessID   string `json:"business_id" validate:"required"`
	BusinessName string `json:"business_name" validate:"required"`
	Role         string `json:"role" validate:"required"`
	OwnerName    string `json:"owner_name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Email        string `json:"email"`
	TrialStart   string `json:"trial_start"`
	AppVersion   string `json:"app_version"`
}

// Register creates or updates the customer behind a business_id.
func (h *BusinessHandler) Register(c *fiber.Ctx) error {
	var req RegisterBusinessRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}

	customer, err := h.store.RegisterBusiness(c.UserContext(), license.RegisterInput{
		BusinessID:   req.BusinessID,
		BusinessName: req.BusinessName,
		Role:         req.Role,
		OwnerName:    req.OwnerName,
		Phone:        req.Phone,
		Email:        req.Email,
		TrialStart:   req.TrialStart,
		AppVersion:   req.AppVersion,
	})
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"business_id": customer.BusinessID,
		"customer": fiber.Map{
			"id":                customer.ID,
			"business_id":       customer.BusinessID,
			"nombre_negocio":    customer.NombreNegocio,
			"contacto_telefono": customer.ContactoTelefono,
			"contacto_email":    customer.ContactoEmail,
			"trial_start_at":    customer.TrialStartAt,
		},
	})
}

// License returns the signed token of a business, or 204 when nothing can be granted.
func (h *BusinessHandler) License(c *fiber.Ctx) error {
	businessID := c.Params("business_id")
	tok, err := h.files.BusinessToken(c.UserContext(), businessID, h.opts)
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	if tok == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(fiber.Map{
		"ok":            true,
		"business_id":   tok.Payload.BusinessID,
		"license_token": tok.Token,
		"plan":          tok.Payload.Plan,
		"starts_at":     tok.Payload.StartsAt,
		"expires_at":    tok.Payload.ExpiresAt,
		"estado":        tok.Payload.Estado,
	})
}
