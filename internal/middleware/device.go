package middleware

import (
	"github.com/fullpos/license-server/internal/syncengine"
	"github.com/gofiber/fiber/v2"
)

// Device credential headers sent by the POS.
const (
	HeaderLicenseKey = "X-License-Key"
	HeaderDeviceID   = "X-Device-Id"
)

// DeviceGate admits a device whose license is usable and linked to a company.
// The resolved access is stored for the handler.
func DeviceGate(engine *syncengine.Engine, env Envelope) fiber.Handler {
	return func(c *fiber.Ctx) error {
		access, err := engine.Gate(c.UserContext(), c.Get(HeaderLicenseKey), c.Get(HeaderDeviceID))
		if err != nil {
			return Fail(c, env, err)
		}
		c.Locals("access", access)
		return c.Next()
	}
}

// GetAccess returns the access resolved by DeviceGate.
func GetAccess(c *fiber.Ctx) *syncengine.Access {
	access, ok := c.Locals("access").(*syncengine.Access)
	if !ok {
		return nil
	}
	return access
}
