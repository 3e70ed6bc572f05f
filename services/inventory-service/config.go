package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yashrajoria/commerce-core/services/common/config"
	"github.com/yashrajoria/commerce-core/services/common/database"
	"github.com/yashrajoria/commerce-core/services/inventory-service/services"
)

// Config holds all configuration for the inventory-service.
type Config struct {
	Port string
	Env  string

	// StockBackend selects the counter store: postgres, dynamodb, mongo or memory.
	// Reservations live in Postgres unless the backend is memory.
	StockBackend string
	Postgres     database.PostgresConfig
	DDBTable     string
	MongoURI     string
	MongoDB      string

	RedisURL string

	KafkaBrokers []string
	StockTopic   string

	Retry          services.RetryPolicy
	ReservationTTL time.Duration

	Reaper          services.ReaperConfig
	OrderServiceURL string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// LoadConfig loads environment variables into Config struct.
func LoadConfig(ctx context.Context) (*Config, error) {
	config.LoadDotEnv()

	retry := services.DefaultRetryPolicy()
	retry.MaxRetries = config.GetInt("STOCK_MAX_RETRIES", retry.MaxRetries)
	retry.BaseDelay = config.GetDuration("STOCK_RETRY_BASE_DELAY", retry.BaseDelay)
	retry.MaxDelay = config.GetDuration("STOCK_RETRY_MAX_DELAY", retry.MaxDelay)
	retry.Jitter = config.GetBool("STOCK_RETRY_JITTER", retry.Jitter)

	cfg := &Config{
		Port:           config.GetEnv("PORT", "8084"),
		Env:            config.GetEnv("APP_ENV", "production"),
		StockBackend:   config.GetEnv("STOCK_BACKEND", "postgres"),
		Postgres:       config.PostgresFromEnv(),
		DDBTable:       config.GetEnv("DDB_TABLE_STOCK", "Stock"),
		MongoURI:       config.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        config.GetEnv("MONGO_DB", "inventory"),
		RedisURL:       config.GetEnv("REDIS_URL", ""),
		KafkaBrokers:   config.GetList("KAFKA_BROKERS", nil),
		StockTopic:     config.GetEnv("STOCK_EVENTS_TOPIC", "stock-events"),
		Retry:          retry,
		ReservationTTL: config.GetDuration("RESERVATION_TTL", services.DefaultReservationTTL),
		Reaper: services.ReaperConfig{
			Interval:      config.GetDuration("REAPER_INTERVAL", services.DefaultReaperInterval),
			BatchSize:     config.GetInt("REAPER_BATCH_SIZE", services.DefaultReaperBatchSize),
			RatePerSecond: config.GetFloat("REAPER_RATE_PER_SECOND", 50),
			MaxRetryDelay: config.GetDuration("REAPER_MAX_RETRY_DELAY", services.DefaultReaperMaxDelay),
		},
		OrderServiceURL:    config.GetEnv("ORDER_SERVICE_URL", ""),
		RateLimitPerSecond: config.GetFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     config.GetInt("RATE_LIMIT_BURST", 40),
	}

	switch cfg.StockBackend {
	case "postgres", "dynamodb", "mongo", "memory":
	default:
		return nil, fmt.Errorf("unknown STOCK_BACKEND %q", cfg.StockBackend)
	}

	if cfg.StockBackend != "memory" {
		if err := config.ApplyPostgresSecret(ctx, &cfg.Postgres, "inventory/postgres"); err != nil {
			return nil, fmt.Errorf("load postgres secret: %w", err)
		}
		if err := cfg.Postgres.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("STOCK_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}
