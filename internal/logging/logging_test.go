package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("setup_id", "s-1").Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "s-1", entry["setup_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := NewWithWriter(LogConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewWithWriter(LogConfig{}, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LogConfig{Level: "debug", Format: "console"}, &buf)

	logger.Debug().Msg("batch started")
	assert.Contains(t, buf.String(), "batch started")
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
