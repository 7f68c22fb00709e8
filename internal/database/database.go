package database

import (
	"context"
	"fmt"
	"time"

	"github.com/fullpos/license-server/internal/config"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB    *gorm.DB
	Redis *redis.Client
)

const (
	connectAttempts = 30
	connectBackoff  = 2 * time.Second
)

// Connect opens postgres (retrying while the server starts) and redis.
func Connect(ctx context.Context, cfg *config.Config) error {
	log := logger.L()

	var err error
	for i := 0; i < connectAttempts; i++ {
		DB, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err == nil {
			break
		}
		log.Warn("Database connection attempt failed",
			zap.Int("attempt", i+1), zap.Int("max", connectAttempts), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connected successfully")

	Redis = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := Redis.Ping(pingCtx).Result(); err != nil {
		// The cache only serves non-authoritative reads; run without it.
		log.Warn("Redis unavailable, running without cache", zap.Error(err))
		_ = Redis.Close()
		Redis = nil
		return nil
	}

	log.Info("Redis connected successfully")
	return nil
}

// Close releases the database and redis connections.
func Close() {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if Redis != nil {
		Redis.Close()
	}
}
