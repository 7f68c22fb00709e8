package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fullpos/license-server/internal/activation"
	"github.com/fullpos/license-server/internal/backup"
	"github.com/fullpos/license-server/internal/config"
	"github.com/fullpos/license-server/internal/database"
	"github.com/fullpos/license-server/internal/handlers"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/licensefile"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/models"
	"github.com/fullpos/license-server/internal/security"
	"github.com/fullpos/license-server/internal/syncengine"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	defer logger.Sync()
	log := logger.L()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	if err := database.Connect(ctx, cfg); err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()
	db := database.DB

	// Run migrations
	if err := models.AutoMigrate(db, cfg.DefaultProjectCode, cfg.BusinessProjectCode); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	registry := syncengine.DefaultRegistry()
	if err := syncengine.EnsureSchema(ctx, db, registry); err != nil {
		log.Fatal("Failed to prepare sync tables", zap.Error(err))
	}

	jwtSecret, err := database.EnsureJWTSecret(db, cfg.JWTSecret)
	if err != nil {
		log.Fatal("Failed to load JWT secret", zap.Error(err))
	}

	if err := seedAdminUser(db, cfg); err != nil {
		log.Fatal("Failed to seed admin user", zap.Error(err))
	}

	keys, err := licensefile.LoadKeys(cfg.LicenseSignPrivateKey, cfg.LicenseSignPublicKey)
	if err != nil {
		log.Fatal("Failed to load license signing keys", zap.Error(err))
	}

	sealer, err := security.NewSealer(jwtSecret)
	if err != nil {
		log.Fatal("Failed to create secret sealer", zap.Error(err))
	}

	// Core services
	cache := database.NewCache(database.Redis)
	m := metrics.DefaultRegistry()
	store := license.NewStore(db, cache, license.Defaults{
		DemoDays:       cfg.DemoDays,
		DemoMaxDevices: cfg.DemoMaxDevices,
		FullDays:       cfg.FullDays,
		FullMaxDevices: cfg.FullMaxDevices,
	}, cfg.DefaultProjectCode)

	var mirror backup.Mirror
	if cfg.BackupFTPEnabled {
		mirror = backup.NewFTPMirror(backup.FTPConfig{
			Host:      cfg.BackupFTPHost,
			Port:      cfg.BackupFTPPort,
			Username:  cfg.BackupFTPUsername,
			Password:  cfg.BackupFTPPassword,
			Path:      cfg.BackupFTPPath,
			Retention: cfg.BackupRetention,
		})
		log.Info("Backup FTP mirror enabled", zap.String("host", cfg.BackupFTPHost), zap.String("path", cfg.BackupFTPPath))
	}
	backups := backup.NewService(db, cfg.BackupRetention, mirror, m)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "FULLPOS License Server",
		ServerHeader: "FULLPOS",
		BodyLimit:    50 * 1024 * 1024, // 50MB
		ErrorHandler: middleware.ErrorHandler,
	})

	// Global middleware
	app.Use(middleware.Logger(m))
	app.Use(middleware.Recovery())
	app.Use(compress.New())
	app.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		code := fiber.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":  status,
			"service": "fullpos-license-server",
			"redis":   cache.Enabled(),
			"signing": keys.CanSign(),
		})
	})
	app.Get("/metrics", m.Handler())

	handlers.Register(app, handlers.Deps{
		DB:          db,
		Auth:        middleware.NewAuth(jwtSecret, cfg.JWTExpireHours, db, cache),
		Store:       store,
		Activations: activation.NewService(store, m),
		Files:       licensefile.NewService(store, keys, cache, m),
		Engine:      syncengine.NewEngine(store, registry, m),
		Backups:     backups,
		Sealer:      sealer,
		Metrics:     m,
		Business: licensefile.BusinessOptions{
			ProjectCode: cfg.BusinessProjectCode,
			TrialDays:   cfg.TrialDays,
		},
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		LoginGuard:  handlers.NewLoginGuard(5, 15*time.Minute),
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Info("Starting FULLPOS license server", zap.String("addr", addr), zap.String("env", cfg.AppEnv))
	if err := app.Listen(addr); err != nil {
		log.Error("Failed to start server", zap.Error(err))
	}

	backups.Wait()
	log.Info("Server stopped")
}

// seedAdminUser creates the back-office account on first start. Without
// ADMIN_PASSWORD a random password is generated and logged once.
func seedAdminUser(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.AdminUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username := strings.TrimSpace(cfg.AdminUsername)
	if username == "" {
		return errors.New("ADMIN_USERNAME is empty")
	}
	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		password = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	hashedPassword, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("ADMIN_PASSWORD: %w", err)
	}

	admin := models.AdminUser{
		Username: username,
		Password: hashedPassword,
		FullName: "System Administrator",
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	if generated {
		logger.L().Warn("Admin user created with a generated password, change it after first login",
			zap.String("username", username), zap.String("password", password))
	} else {
		logger.L().Info("Admin user created", zap.String("username", username))
	}
	return nil
}
