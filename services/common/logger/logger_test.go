package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_TeesToExtraWriter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("production", &buf)
	require.NoError(t, err)

	log.Info("reservation released", zap.String("reservation_id", "r-1"))
	require.NoError(t, log.Sync())

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "reservation released", entry["msg"])
	assert.Equal(t, "r-1", entry["reservation_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNew_WithoutWriter(t *testing.T) {
	log, err := New("development", nil)
	require.NoError(t, err)
	assert.NotNil(t, log)
}
