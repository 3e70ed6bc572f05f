package main

import (
	"context"
	"fmt"

	"github.com/yashrajoria/commerce-core/services/common/config"
	"github.com/yashrajoria/commerce-core/services/common/database"
)

type Config struct {
	Port                string
	Env                 string
	Postgres            database.PostgresConfig
	InventoryServiceURL string

	// Payment events come from SQS when PaymentEventsQueueURL is set, and
	// from Kafka when brokers are configured. Both may run at once.
	PaymentEventsQueueURL string
	KafkaBrokers          []string
	PaymentTopic          string
	PaymentGroupID        string

	OrderEventsTopicArn string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config.LoadDotEnv()

	cfg := &Config{
		Port:                  config.GetEnv("PORT", "8083"),
		Env:                   config.GetEnv("APP_ENV", "production"),
		Postgres:              config.PostgresFromEnv(),
		InventoryServiceURL:   config.GetEnv("INVENTORY_SERVICE_URL", "http://inventory-service:8084"),
		PaymentEventsQueueURL: config.GetEnv("PAYMENT_EVENTS_QUEUE_URL", ""),
		KafkaBrokers:          config.GetList("KAFKA_BROKERS", nil),
		PaymentTopic:          config.GetEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),
		PaymentGroupID:        config.GetEnv("PAYMENT_EVENTS_GROUP", "order-service"),
		OrderEventsTopicArn:   config.GetEnv("ORDER_SNS_TOPIC_ARN", ""),
		RateLimitPerSecond:    config.GetFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:        config.GetInt("RATE_LIMIT_BURST", 40),
	}

	if err := config.ApplyPostgresSecret(ctx, &cfg.Postgres, "order/DB_CREDENTIALS"); err != nil {
		return nil, fmt.Errorf("load postgres secret: %w", err)
	}
	if err := cfg.Postgres.Validate(); err != nil {
		return nil, err
	}
	if cfg.InventoryServiceURL == "" {
		return nil, fmt.Errorf("INVENTORY_SERVICE_URL is required")
	}
	return cfg, nil
}
