package handlers

import (
	"encoding/json"
	"strings"

	"github.com/fullpos/license-server/internal/activation"
	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// LicenseHandler serves the public endpoints a POS calls to activate and check
// its license.
type LicenseHandler struct {
	activations *activation.Service
	files       *licensefile.Service
}

func NewLicenseHandler(activations *activation.Service, files *licensefile.Service) *LicenseHandler {
	return &LicenseHandler{activations: activations, files: files}
}

// ActivateRequest identifies a license key on a device.
type ActivateRequest struct {
	LicenseKey  string `json:"license_key" validate:"required"`
	DeviceID    string `json:"device_id" validate:"required"`
	ProjectID   string `json:"project_id"`
	ProjectCode string `json:"project_code"`
}

func (r ActivateRequest) toRequest() activation.Request {
	return activation.Request{
		LicenseKey:  r.LicenseKey,
		DeviceID:    r.DeviceID,
		ProjectID:   r.ProjectID,
		ProjectCode: r.ProjectCode,
	}
}

// Activate binds the device to a license slot.
func (h *LicenseHandler) Activate(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	res, err := h.activations.Activate(c.UserContext(), req.toRequest())
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(res)
}

// Check reports whether the device may keep using the license. Blocked and
// expired licenses answer 200 with ok=false and the reason in code.
func (h *LicenseHandler) Check(c *fiber.Ctx) error {
	var req ActivateRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	res, err := h.activations.Check(c.UserContext(), req.toRequest())
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(res)
}

// AutoActivateRequest identifies a reinstalled device.
type AutoActivateRequest struct {
	DeviceID    string `json:"device_id" validate:"required"`
	ProjectID   string `json:"project_id"`
	ProjectCode string `json:"project_code"`
}

// AutoActivate re-binds a device to its customer's newest license.
func (h *LicenseHandler) AutoActivate(c *fiber.Ctx) error {
	var req AutoActivateRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	res, err := h.activations.AutoActivate(c.UserContext(), activation.AutoActivateRequest{
		DeviceID:    req.DeviceID,
		ProjectID:   req.ProjectID,
		ProjectCode: req.ProjectCode,
	})
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(res)
}

// StartDemoRequest registers a business and asks for a demo.
type StartDemoRequest struct {
	NombreNegocio    string `json:"nombre_negocio" validate:"required"`
	ContactoNombre   string `json:"contacto_nombre"`
	ContactoEmail    string `json:"contacto_email"`
	ContactoTelefono string `json:"contacto_telefono"`
	DeviceID         string `json:"device_id" validate:"required"`
	ProjectID        string `json:"project_id"`
	ProjectCode      string `json:"project_code"`
}

// StartDemo returns the device's running demo or starts a new one. A new demo
// answers 201.
func (h *LicenseHandler) StartDemo(c *fiber.Ctx) error {
	var req StartDemoRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	res, err := h.activations.StartDemo(c.UserContext(), activation.DemoRequest{
		NombreNegocio:    req.NombreNegocio,
		ContactoNombre:   req.ContactoNombre,
		ContactoEmail:    req.ContactoEmail,
		ContactoTelefono: req.ContactoTelefono,
		DeviceID:         req.DeviceID,
		ProjectID:        req.ProjectID,
		ProjectCode:      req.ProjectCode,
	})
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	if res.Created {
		c.Status(fiber.StatusCreated)
	}
	return c.JSON(res)
}

// VerifyFileRequest carries a license file, as an object or as its JSON text.
type VerifyFileRequest struct {
	LicenseFile json.RawMessage `json:"license_file"`
	DeviceID    string          `json:"device_id"`
}

// VerifyOfflineFile runs the checks a POS performs without network access.
func (h *LicenseHandler) VerifyOfflineFile(c *fiber.Ctx) error {
	var req VerifyFileRequest
	if err := parseBody(c, &req); err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}

	raw := []byte(strings.TrimSpace(string(req.LicenseFile)))
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return middleware.Fail(c, middleware.EnvelopeOK, apperr.ErrInvalidFormat)
		}
		raw = []byte(text)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return middleware.Fail(c, middleware.EnvelopeOK, apperr.ErrBadRequest.WithMessage("license_file is required"))
	}

	res, err := h.files.VerifyOffline(raw, req.DeviceID)
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(fiber.Map{
		"ok":           res.SignatureOK,
		"signature_ok": res.SignatureOK,
		"expired":      res.Expired,
		"device_match": res.DeviceMatch,
		"code":         res.Code,
		"payload":      res.Payload,
	})
}

// PublicSigningKey publishes the verification key as a JWK.
func (h *LicenseHandler) PublicSigningKey(c *fiber.Ctx) error {
	jwk, err := h.files.PublicJWK(c.UserContext())
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(fiber.Map{
		"ok":  true,
		"alg": jwk.Alg,
		"jwk": jwk,
	})
}
