package main

import (
	"time"

	"github.com/yashrajoria/commerce-core/api-gateway/routes"
	"github.com/yashrajoria/commerce-core/services/common/config"
)

type Config struct {
	Port            string
	Env             string
	Upstreams       routes.Upstreams
	UpstreamTimeout time.Duration
	AllowedOrigins  []string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

func LoadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Port: config.GetEnv("PORT", "8080"),
		Env:  config.GetEnv("APP_ENV", "production"),
		Upstreams: routes.Upstreams{
			Inventory: config.GetEnv("INVENTORY_SERVICE_URL", "http://inventory-service:8084"),
			Orders:    config.GetEnv("ORDER_SERVICE_URL", "http://order-service:8083"),
			Coupons:   config.GetEnv("PROMOTION_SERVICE_URL", "http://promotion-service:8090"),
		},
		UpstreamTimeout:    config.GetDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		AllowedOrigins:     config.GetList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitPerSecond: config.GetFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     config.GetInt("RATE_LIMIT_BURST", 40),
	}
}
