package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type Config struct {
	// Environment
	AppEnv string `envconfig:"APP_ENV" default:"production"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"fullpos"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"fullpos_licenses"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Redis
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"2m"`

	// JWT
	JWTSecret      string `envconfig:"JWT_SECRET"`
	JWTExpireHours int    `envconfig:"JWT_EXPIRE_HOURS" default:"12"`

	// API
	APIPort        int    `envconfig:"API_PORT" default:"8080"`
	AllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Admin seed
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	// License signing (Ed25519). PEM or base64; *_FILE variants are resolved by Load.
	LicenseSignPrivateKey string `envconfig:"LICENSE_SIGN_PRIVATE_KEY"`
	LicenseSignPublicKey  string `envconfig:"LICENSE_SIGN_PUBLIC_KEY"`

	// Licensing
	DefaultProjectCode  string `envconfig:"DEFAULT_PROJECT_CODE" default:"DEFAULT"`
	BusinessProjectCode string `envconfig:"BUSINESS_PROJECT_CODE" default:"FULLPOS"`
	TrialDays           int    `envconfig:"TRIAL_DAYS" default:"5"`
	DemoDays            int    `envconfig:"DEMO_DIAS_VALIDEZ" default:"15"`
	DemoMaxDevices      int    `envconfig:"DEMO_MAX_DISPOSITIVOS" default:"1"`
	FullDays            int    `envconfig:"FULL_DIAS_VALIDEZ" default:"365"`
	FullMaxDevices      int    `envconfig:"FULL_MAX_DISPOSITIVOS" default:"2"`

	// Backups
	BackupRetention   int    `envconfig:"BACKUP_RETENTION" default:"10"`
	BackupFTPEnabled  bool   `envconfig:"BACKUP_FTP_ENABLED" default:"false"`
	BackupFTPHost     string `envconfig:"BACKUP_FTP_HOST"`
	BackupFTPPort     int    `envconfig:"BACKUP_FTP_PORT" default:"21"`
	BackupFTPUsername string `envconfig:"BACKUP_FTP_USERNAME"`
	BackupFTPPassword string `envconfig:"BACKUP_FTP_PASSWORD"`
	BackupFTPPath     string `envconfig:"BACKUP_FTP_PATH" default:"/fullpos-backups"`
}

// secretFields lists the variables that may be supplied through a <NAME>_FILE path.
var secretFields = []string{
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"JWT_SECRET",
	"ADMIN_PASSWORD",
	"LICENSE_SIGN_PRIVATE_KEY",
	"LICENSE_SIGN_PUBLIC_KEY",
	"BACKUP_FTP_PASSWORD",
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	if err := resolveFileSecrets(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.L()
	if cfg.DBPassword == "" {
		log.Warn("DB_PASSWORD not set - this is insecure for production!")
	}
	if cfg.RedisPassword == "" {
		log.Warn("REDIS_PASSWORD not set - Redis is not secured!")
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set - secret will be loaded from or persisted to the database")
	}
	if cfg.LicenseSignPrivateKey == "" {
		log.Warn("LICENSE_SIGN_PRIVATE_KEY not set - license file export will fail with MISSING_ENV")
	}
	if cfg.BackupRetention < 1 {
		cfg.BackupRetention = 10
	}

	cfg.DefaultProjectCode = strings.ToUpper(strings.TrimSpace(cfg.DefaultProjectCode))
	cfg.BusinessProjectCode = strings.ToUpper(strings.TrimSpace(cfg.BusinessProjectCode))

	log.Debug("Config loaded", zap.String("env", cfg.AppEnv), zap.Int("api_port", cfg.APIPort))
	return &cfg, nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// resolveFileSecrets copies the content of NAME_FILE into NAME when NAME is unset.
func resolveFileSecrets() error {
	for _, name := range secretFields {
		if os.Getenv(name) != "" {
			continue
		}
		path := strings.TrimSpace(os.Getenv(name + "_FILE"))
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s_FILE: %w", name, err)
		}
		if err := os.Setenv(name, strings.TrimSpace(string(data))); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}
	return nil
}
