// Package config holds the environment helpers shared by service configs.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/services/common/database"
)

// LoadDotEnv loads .env when present. A missing file is not an error.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func GetFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func GetBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func GetList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PostgresFromEnv reads POSTGRES_* variables.
func PostgresFromEnv() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     GetEnv("POSTGRES_HOST", "localhost"),
		Port:     GetEnv("POSTGRES_PORT", "5432"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   os.Getenv("POSTGRES_DB"),
		SSLMode:  GetEnv("POSTGRES_SSLMODE", "disable"),
		TimeZone: GetEnv("POSTGRES_TIMEZONE", "UTC"),
	}
}

// ApplyPostgresSecret overrides credentials from the named Secrets Manager
// JSON secret when AWS_USE_SECRETS=true. Lookup failures keep the
// environment values.
func ApplyPostgresSecret(ctx context.Context, pg *database.PostgresConfig, secretName string) error {
	if os.Getenv("AWS_USE_SECRETS") != "true" {
		return nil
	}
	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}
	values, err := awspkg.NewSecretsClient(awsCfg).GetSecretMap(ctx, secretName)
	if err != nil {
		return err
	}
	if v := values["username"]; v != "" {
		pg.User = v
	}
	if v := values["password"]; v != "" {
		pg.Password = v
	}
	if v := values["host"]; v != "" {
		pg.Host = v
	}
	if v := values["dbname"]; v != "" {
		pg.DBName = v
	}
	return nil
}
