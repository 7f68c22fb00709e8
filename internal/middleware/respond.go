package middleware

import (
	"strings"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Envelope is the boolean key a client contract reads to tell success from failure.
type Envelope string

const (
	// EnvelopeOK is used by the license, business and sync endpoints.
	EnvelopeOK Envelope = "ok"
	// EnvelopeSuccess is used by the backup and admin endpoints.
	EnvelopeSuccess Envelope = "success"
)

// Fail writes err as {<envelope>: false, code, message}. Errors without a code are
// logged and hidden behind a generic 500.
func Fail(c *fiber.Ctx, env Envelope, err error) error {
	if e, ok := apperr.As(err); ok {
		return c.Status(e.Status).JSON(fiber.Map{
			string(env): false,
			"code":      e.Code,
			"message":   e.Message,
		})
	}

	logger.L().Error("Request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		string(env): false,
		"message":   "Internal server error",
	})
}

// ErrorHandler is the fiber fallback for errors returned by handlers. Admin routes
// answer with the success envelope, everything else with ok.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			string(envelopeFor(c.Path())): false,
			"message":                     e.Message,
		})
	}
	return Fail(c, envelopeFor(c.Path()), err)
}

func envelopeFor(path string) Envelope {
	switch {
	case strings.HasPrefix(path, "/api/admin"), strings.HasPrefix(path, "/api/auth"), strings.HasPrefix(path, "/api/backup"):
		return EnvelopeSuccess
	}
	return EnvelopeOK
}
