package handlers

import (
	"github.com/fullpos/license-server/internal/backup"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// BackupHandler stores and restores company snapshots for a gated device.
type BackupHandler struct {
	backups *backup.Service
}

func NewBackupHandler(backups *backup.Service) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// Push stores the request body as the device's newest backup.
func (h *BackupHandler) Push(c *fiber.Ctx) error {
	saved, err := h.backups.Push(c.UserContext(), middleware.GetAccess(c), c.Body())
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeSuccess, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"backup":  saved,
	})
}

// Pull returns the device's newest backup, falling back to the company's.
func (h *BackupHandler) Pull(c *fiber.Ctx) error {
	snap, err := h.backups.Pull(c.UserContext(), middleware.GetAccess(c))
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeSuccess, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"backup":  snap,
	})
}

// History lists the device's backups without their content.
func (h *BackupHandler) History(c *fiber.Ctx) error {
	entries, err := h.backups.History(c.UserContext(), middleware.GetAccess(c), queryInt(c, "limit", 0))
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeSuccess, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"backups": entries,
	})
}
