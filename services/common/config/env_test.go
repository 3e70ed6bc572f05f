package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	t.Setenv("RETRY_MAX", "5")
	t.Setenv("REAPER_INTERVAL", "30s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("BAD_DURATION", "soon")
	t.Setenv("RETRY_JITTER", "false")

	assert.Equal(t, 5, GetInt("RETRY_MAX", 3))
	assert.Equal(t, 3, GetInt("MISSING_INT", 3))
	assert.Equal(t, 30*time.Second, GetDuration("REAPER_INTERVAL", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("BAD_DURATION", time.Minute))
	assert.Equal(t, []string{"a:9092", "b:9092"}, GetList("KAFKA_BROKERS", nil))
	assert.Equal(t, "fallback", GetEnv("MISSING_STRING", "fallback"))
	assert.False(t, GetBool("RETRY_JITTER", true))
	assert.True(t, GetBool("MISSING_BOOL", true))
}

func TestPostgresFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_HOST", "")

	pg := PostgresFromEnv()
	assert.Equal(t, "app", pg.User)
	assert.Equal(t, "localhost", pg.Host)
	assert.Equal(t, "5432", pg.Port)
}
