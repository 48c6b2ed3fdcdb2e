package initializer

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogger(&buf, &config.Log{Format: "json", Prefix: "[topupledger]"}))
	logger.Info("saga advanced", "saga_id", "s-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "saga advanced", line["msg"])
	assert.Equal(t, "s-1", line["saga_id"])
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	// charmbracelet levels: debug=-4, info=0, warn=4
	logger := slog.New(newLogger(&buf, &config.Log{Format: "text", Level: 4}))
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
