package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresConfig_DSNAndValidate(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: "5432", User: "app", Password: "secret",
		DBName: "commerce", SSLMode: "disable", TimeZone: "UTC",
	}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "host=db user=app password=secret dbname=commerce port=5432 sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.Password = ""
	assert.EqualError(t, cfg.Validate(), "POSTGRES_PASSWORD not set")
}
