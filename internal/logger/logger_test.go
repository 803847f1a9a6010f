package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNamedLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "debug", JSON: true, DisableCaller: true}
	log := NewLoggerWithCore(CreateTestCore(cfg, &buf), cfg).Named("reconciler")

	log.Info("record updated", "employee_id", "emp-1", "revision", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "record updated", entry["msg"])
	assert.Equal(t, "reconciler", entry["logger"])
	assert.Equal(t, "emp-1", entry["employee_id"])
	assert.EqualValues(t, 3, entry["revision"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "warn", DisableCaller: true}
	log := NewLoggerWithCore(CreateTestCore(cfg, &buf), cfg)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "info", JSON: true, DisableCaller: true}
	log := NewLoggerWithCore(CreateTestCore(cfg, &buf), cfg).With("camera_id", "cam1")

	log.Info("first")
	log.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"camera_id":"cam1"`)
	}
}

func TestGetZapLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" warning ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getZapLevel(tt.in, zapcore.InfoLevel), tt.in)
	}
}

func TestNewLoggerWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "attendance.log")
	log, err := NewLogger(Config{Level: "info", DisableColor: true, FilePath: path, Rotation: DefaultRotationConfig()})
	require.NoError(t, err)

	log.Info("to file", "k", "v")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}
