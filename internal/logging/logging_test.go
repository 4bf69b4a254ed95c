package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "warn", Format: "json"})

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "sampler").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "sampler", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewLoggerToDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "not-a-level"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewLoggerTo(&buf, Config{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestWithApp(t *testing.T) {
	var buf bytes.Buffer
	logger := WithApp(NewLoggerTo(&buf, Config{}), "gaswindow", "production")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gaswindow", entry["app"])
	assert.Equal(t, "production", entry["env"])

	buf.Reset()
	bare := WithApp(NewLoggerTo(&buf, Config{}), "", "")
	bare.Info().Msg("bare")
	entry = map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "app")
	assert.NotContains(t, entry, "env")
}
