package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yashrajoria/commerce-core/services/common/config"
	"github.com/yashrajoria/commerce-core/services/common/database"
)

// Config holds all configuration for the promotion service.
type Config struct {
	Port string
	Env  string

	// CouponBackend is postgres or memory.
	CouponBackend string
	Postgres      database.PostgresConfig

	// IssueStrategy picks how concurrent issuance of one coupon is
	// serialized: rowlock (SELECT ... FOR UPDATE) or pubsub (distributed
	// lock keyed by coupon).
	IssueStrategy   string
	LockBackend     string
	LockTTL         time.Duration
	LockWaitTimeout time.Duration
	RedisURL        string

	PromotionSNSTopicARN string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// LoadConfig reads configuration from environment variables with optional
// Secrets Manager override.
func LoadConfig(ctx context.Context) (*Config, error) {
	config.LoadDotEnv()

	cfg := &Config{
		Port:                 config.GetEnv("PORT", "8090"),
		Env:                  config.GetEnv("APP_ENV", "production"),
		CouponBackend:        config.GetEnv("COUPON_BACKEND", "postgres"),
		Postgres:             config.PostgresFromEnv(),
		IssueStrategy:        config.GetEnv("ISSUE_STRATEGY", "rowlock"),
		LockBackend:          config.GetEnv("LOCK_BACKEND", "redis"),
		LockTTL:              config.GetDuration("LOCK_TTL", 5*time.Second),
		LockWaitTimeout:      config.GetDuration("LOCK_WAIT_TIMEOUT", 3*time.Second),
		RedisURL:             config.GetEnv("REDIS_URL", "redis://localhost:6379"),
		PromotionSNSTopicARN: config.GetEnv("PROMOTION_SNS_TOPIC_ARN", ""),
		RateLimitPerSecond:   config.GetFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:       config.GetInt("RATE_LIMIT_BURST", 100),
	}

	switch cfg.CouponBackend {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown COUPON_BACKEND %q", cfg.CouponBackend)
	}
	switch cfg.IssueStrategy {
	case "rowlock", "pubsub":
	default:
		return nil, fmt.Errorf("unknown ISSUE_STRATEGY %q", cfg.IssueStrategy)
	}
	switch cfg.LockBackend {
	case "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
	// The memory store has no row locks to take.
	if cfg.CouponBackend == "memory" && cfg.IssueStrategy == "rowlock" {
		return nil, fmt.Errorf("ISSUE_STRATEGY=rowlock requires COUPON_BACKEND=postgres")
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("LOCK_TTL must be positive")
	}

	if cfg.CouponBackend == "postgres" {
		if err := config.ApplyPostgresSecret(ctx, &cfg.Postgres, "promotion/DB_CREDENTIALS"); err != nil {
			return nil, fmt.Errorf("load postgres secret: %w", err)
		}
		if err := cfg.Postgres.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
