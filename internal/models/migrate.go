package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fullpos/license-server/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// All returns every model owned by the license server, in migration order.
func All() []interface{} {
	return []interface{}{
		&Project{},
		&Customer{},
		&License{},
		&Activation{},
		&Company{},
		&CompanyLicense{},
		&Backup{},
		&SyncLog{},
		&AdminUser{},
		&AuditLog{},
		&SystemPreference{},
	}
}

// AutoMigrate creates or updates the licensing tables and seeds the default projects.
// Sync tables are owned by the sync engine and migrated separately.
func AutoMigrate(db *gorm.DB, projectCodes ...string) error {
	logger.L().Info("Running database migrations")

	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	for i, code := range projectCodes {
		if err := ensureProject(db, code, i == 0); err != nil {
			return err
		}
	}

	logger.L().Info("Database migrations completed successfully")
	return nil
}

func ensureProject(db *gorm.DB, code string, isDefault bool) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}

	var existing Project
	err := db.Where("code = ?", code).First(&existing).Error
	if err == nil {
		if isDefault && !existing.IsDefault {
			return db.Model(&Project{}).Where("id = ?", existing.ID).Update("is_default", true).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up project %s: %w", code, err)
	}

	p := Project{Code: code, Name: code, IsDefault: isDefault}
	if err := db.Create(&p).Error; err != nil {
		return fmt.Errorf("failed to seed project %s: %w", code, err)
	}
	logger.L().Info("Seeded project", zap.String("code", code), zap.Bool("default", isDefault))
	return nil
}
