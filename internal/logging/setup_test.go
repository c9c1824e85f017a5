package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupHandlerText(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		expectedLevel log.Level
	}{
		{name: "trace level", logLevel: "trace", expectedLevel: log.DebugLevel},
		{name: "debug level", logLevel: "debug", expectedLevel: log.DebugLevel},
		{name: "info level", logLevel: "info", expectedLevel: log.InfoLevel},
		{name: "warn level", logLevel: "warn", expectedLevel: log.WarnLevel},
		{name: "warning level", logLevel: "warning", expectedLevel: log.WarnLevel},
		{name: "error level", logLevel: "error", expectedLevel: log.ErrorLevel},
		{name: "unknown level defaults to info", logLevel: "bogus", expectedLevel: log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := SetupHandlerText(tt.logLevel, &buf)
			require.NotNil(t, handler)

			charmLogger, ok := handler.(*log.Logger)
			require.True(t, ok, "expected a charmbracelet logger")
			assert.Equal(t, tt.expectedLevel, charmLogger.GetLevel())
		})
	}
}

func TestSetupHandlerText_Writes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(SetupHandlerText("debug", &buf))
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestSetupHandlerJSON(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		emitAt   slog.Level
		expect   bool
	}{
		{name: "debug enabled at debug", logLevel: "debug", emitAt: slog.LevelDebug, expect: true},
		{name: "debug suppressed at info", logLevel: "info", emitAt: slog.LevelDebug, expect: false},
		{name: "error only", logLevel: "error", emitAt: slog.LevelWarn, expect: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := SetupHandlerJSON(tt.logLevel, &buf)
			logger := slog.New(handler)
			logger.Log(t.Context(), tt.emitAt, "probe")
			if tt.expect {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestSetupHandlerJSON_ValidJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(SetupHandlerJSON("info", &buf))
	logger.Info("structured", "widget", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "structured", entry["msg"])
	assert.EqualValues(t, 42, entry["widget"])
}

func TestSetupLogger(t *testing.T) {
	originalLogger := slog.Default()
	defer slog.SetDefault(originalLogger)

	SetupLogger("debug", "text")
	assert.NotSame(t, originalLogger, slog.Default())

	SetupLogger("info", "json")
	assert.NotNil(t, slog.Default())
}
