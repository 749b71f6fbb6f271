package utils

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "warn", "json").Component("pipeline").With("run_id", "r-1")

	log.Info("dropped %d", 1)
	log.Warn("skipping listing %d", 42)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "r-1", entry["run_id"])
	assert.Equal(t, "skipping listing 42", entry["message"])
}

func TestParseLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "LOUD", "json")
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
