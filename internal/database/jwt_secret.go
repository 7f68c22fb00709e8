package database

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"gorm.io/gorm"
)

const jwtSecretKey = "jwt_secret"

// EnsureJWTSecret returns the persisted JWT secret. When none is stored, the configured
// secret (or a freshly generated one) is saved so tokens survive restarts.
func EnsureJWTSecret(db *gorm.DB, configured string) (string, error) {
	var pref models.SystemPreference
	err := db.Where("key = ?", jwtSecretKey).First(&pref).Error
	if err == nil && pref.Value != "" {
		if configured != "" && configured != pref.Value {
			logger.L().Warn("JWT_SECRET differs from the persisted secret - using JWT_SECRET")
			return configured, nil
		}
		logger.L().Info("JWT secret loaded from database - sessions will persist across restarts")
		return pref.Value, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load jwt secret: %w", err)
	}

	secret := configured
	if secret == "" {
		secret, err = generateSecureSecret(32)
		if err != nil {
			return "", err
		}
	}

	pref = models.SystemPreference{Key: jwtSecretKey, Value: secret, ValueType: "string"}
	if err := db.Create(&pref).Error; err != nil {
		// Lost a race with another instance; keep whatever won.
		var existing models.SystemPreference
		if err := db.Where("key = ?", jwtSecretKey).First(&existing).Error; err != nil {
			return "", fmt.Errorf("failed to persist jwt secret: %w", err)
		}
		return existing.Value, nil
	}

	logger.L().Info("JWT secret generated and persisted to database")
	return secret, nil
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
