package handlers

import (
	"time"

	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/models"
	"github.com/fullpos/license-server/internal/security"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TwoFAHandler struct {
	db     *gorm.DB
	sealer *security.Sealer
	issuer string
}

func NewTwoFAHandler(db *gorm.DB, sealer *security.Sealer, issuer string) *TwoFAHandler {
	if issuer == "" {
		issuer = "FULLPOS Licencias"
	}
	return &TwoFAHandler{db: db, sealer: sealer, issuer: issuer}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func internalError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// freshUser reloads the current user with its stored secret.
func (h *TwoFAHandler) freshUser(c *fiber.Ctx) (*models.AdminUser, error) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var fresh models.AdminUser
	if err := h.db.WithContext(c.UserContext()).Where("id = ?", user.ID).First(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}

// Setup generates a new 2FA secret and returns QR code
func (h *TwoFAHandler) Setup(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if err != nil {
		return internalError(c, "Failed to get user data")
	}
	if user.TwoFactorEnabled {
		return badRequest(c, "2FA is already enabled")
	}

	enrollment, err := security.NewEnrollment(h.issuer, user.Username)
	if err != nil {
		return internalError(c, "Failed to generate 2FA secret")
	}
	sealed, err := h.sealer.Seal(enrollment.Secret)
	if err != nil {
		return internalError(c, "Failed to store 2FA secret")
	}

	// Stored sealed and disabled until verified
	if err := h.db.Model(&models.AdminUser{}).Where("id = ?", user.ID).Update("two_factor_secret", sealed).Error; err != nil {
		return internalError(c, "Failed to store 2FA secret")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    enrollment,
	})
}

type twoFACodeRequest struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password"`
}

// Verify verifies the 2FA code and enables 2FA
func (h *TwoFAHandler) Verify(c *fiber.Ctx) error {
	var req twoFACodeRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "Code is required")
	}

	user, err := h.freshUser(c)
	if err != nil {
		return internalError(c, "Failed to get user data")
	}
	if user.TwoFactorSecret == "" {
		return badRequest(c, "2FA not set up. Please call setup first")
	}

	secret, err := h.sealer.Open(user.TwoFactorSecret)
	if err != nil || !security.ValidateTOTP(req.Code, secret, time.Now()) {
		return badRequest(c, "Invalid code. Please try again")
	}

	if err := h.db.Model(&models.AdminUser{}).Where("id = ?", user.ID).Update("two_factor_enabled", true).Error; err != nil {
		return internalError(c, "Failed to enable 2FA")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA enabled successfully",
	})
}

// Disable disables 2FA for the user
func (h *TwoFAHandler) Disable(c *fiber.Ctx) error {
	var req twoFACodeRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, "Code is required")
	}

	user, err := h.freshUser(c)
	if err != nil {
		return internalError(c, "Failed to get user data")
	}
	if !user.TwoFactorEnabled {
		return badRequest(c, "2FA is not enabled")
	}
	if !security.CheckPassword(user.Password, req.Password) {
		return badRequest(c, "Invalid password")
	}
	secret, err := h.sealer.Open(user.TwoFactorSecret)
	if err != nil || !security.ValidateTOTP(req.Code, secret, time.Now()) {
		return badRequest(c, "Invalid 2FA code")
	}

	err = h.db.Model(&models.AdminUser{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error
	if err != nil {
		return internalError(c, "Failed to disable 2FA")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA disabled successfully",
	})
}

// Status returns 2FA status for current user
func (h *TwoFAHandler) Status(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if err != nil {
		return internalError(c, "Failed to get user data")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"enabled": user.TwoFactorEnabled,
		},
	})
}
