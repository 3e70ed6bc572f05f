// Package database opens the stores shared by the services.
package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone,
	)
}

func (c PostgresConfig) Validate() error {
	switch {
	case c.User == "":
		return fmt.Errorf("POSTGRES_USER not set")
	case c.Password == "":
		return fmt.Errorf("POSTGRES_PASSWORD not set")
	case c.DBName == "":
		return fmt.Errorf("POSTGRES_DB not set")
	}
	return nil
}

const connectAttempts = 10

// ConnectPostgres opens a pooled gorm connection, retrying with linear
// backoff while the database comes up, then migrates models.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger, models ...any) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			if sqlDB, poolErr := db.DB(); poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}
			logger.Info("connected to postgres", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))

			if len(models) > 0 {
				if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
					return nil, fmt.Errorf("automigrate: %w", err)
				}
			}
			return db, nil
		}

		lastErr = err
		logger.Warn("postgres connection failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", connectAttempts, lastErr)
}

func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
