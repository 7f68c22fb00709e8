package handlers

import (
	"github.com/fullpos/license-server/internal/activation"
	"github.com/fullpos/license-server/internal/backup"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/security"
	"github.com/fullpos/license-server/internal/syncengine"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Deps are the services the API routes are served from.
type Deps struct {
	DB          *gorm.DB
	Auth        *middleware.Auth
	Store       *license.Store
	Activations *activation.Service
	Files       *licensefile.Service
	Engine      *syncengine.Engine
	Backups     *backup.Service
	Sealer      *security.Sealer
	Metrics     *metrics.Registry
	Business    licensefile.BusinessOptions
	RateLimiter *middleware.RateLimiter
	LoginGuard  *LoginGuard
	TOTPIssuer  string
}

// Register mounts every /api route on app.
func Register(app *fiber.App, d Deps) {
	licenseHandler := NewLicenseHandler(d.Activations, d.Files)
	businessHandler := NewBusinessHandler(d.Store, d.Files, d.Business)
	syncHandler := NewSyncHandler(d.Engine)
	backupHandler := NewBackupHandler(d.Backups)
	authHandler := NewAuthHandler(d.DB, d.Auth, d.Sealer, d.LoginGuard)
	twoFAHandler := NewTwoFAHandler(d.DB, d.Sealer, d.TOTPIssuer)
	adminLicenseHandler := NewAdminLicenseHandler(d.Store, d.Activations, d.Files, d.Metrics)
	auditHandler := NewAuditHandler(d.DB)

	api := app.Group("/api")
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Handler())
	}

	// Public license routes
	licenses := api.Group("/licenses")
	licenses.Post("/activate", licenseHandler.Activate)
	licenses.Post("/check", licenseHandler.Check)
	licenses.Post("/auto-activate", licenseHandler.AutoActivate)
	licenses.Post("/start-demo", licenseHandler.StartDemo)
	licenses.Post("/verify-offline-file", licenseHandler.VerifyOfflineFile)
	licenses.Get("/public-signing-key", licenseHandler.PublicSigningKey)

	// Business registration
	businesses := api.Group("/businesses")
	businesses.Post("/register", businessHandler.Register)
	businesses.Get("/:business_id/license", businessHandler.License)

	// Device routes (X-License-Key / X-Device-Id)
	sync := api.Group("/sync", middleware.DeviceGate(d.Engine, middleware.EnvelopeOK))
	sync.Post("/push", syncHandler.Push)
	sync.Get("/pull", syncHandler.Pull)

	backups := api.Group("/backup", middleware.DeviceGate(d.Engine, middleware.EnvelopeSuccess))
	backups.Post("/push", backupHandler.Push)
	backups.Get("/pull", backupHandler.Pull)
	backups.Get("/history", backupHandler.History)

	// Auth
	api.Post("/auth/login", authHandler.Login)
	auth := api.Group("/auth", d.Auth.AuthRequired(), middleware.AuditLogger(d.DB))
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/me", authHandler.Me)
	auth.Get("/2fa/status", twoFAHandler.Status)
	auth.Post("/2fa/setup", twoFAHandler.Setup)
	auth.Post("/2fa/verify", twoFAHandler.Verify)
	auth.Post("/2fa/disable", twoFAHandler.Disable)

	// Back office
	admin := api.Group("/admin", d.Auth.AuthRequired(), middleware.AuditLogger(d.DB))

	adminLicenses := admin.Group("/licenses")
	adminLicenses.Post("/", adminLicenseHandler.Create)
	adminLicenses.Get("/", adminLicenseHandler.List)
	adminLicenses.Get("/:id", adminLicenseHandler.Get)
	adminLicenses.Put("/:id", adminLicenseHandler.Update)
	adminLicenses.Patch("/:id", adminLicenseHandler.Update)
	adminLicenses.Delete("/:id", adminLicenseHandler.Delete)
	adminLicenses.Post("/:id/block", adminLicenseHandler.Block())
	adminLicenses.Post("/:id/unblock", adminLicenseHandler.Unblock())
	adminLicenses.Post("/:id/activate-manual", adminLicenseHandler.ActivateManual())
	adminLicenses.Post("/:id/extend-days", adminLicenseHandler.ExtendDays())
	adminLicenses.Get("/:id/license-file", adminLicenseHandler.LicenseFile)
	adminLicenses.Post("/:id/license-file", adminLicenseHandler.LicenseFile)
	adminLicenses.Post("/:id/company", adminLicenseHandler.LinkCompany)
	adminLicenses.Get("/:id/activations", adminLicenseHandler.Activations)

	admin.Post("/activations/:id/revoke", adminLicenseHandler.RevokeActivation)
	admin.Get("/audit-logs", auditHandler.List)
}
