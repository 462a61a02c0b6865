package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupWithWriter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWithWriter(Options{Level: "warn", Component: "worker"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "task", "generate_crm_report")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "worker", line["component"])
	assert.Equal(t, "generate_crm_report", line["task"])
	assert.Equal(t, logger, slog.Default())
}

func TestWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.log")
	w := Writer(path)

	_, err := w.Write([]byte("{\"msg\":\"hello\"}\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestWriter_Stdout(t *testing.T) {
	assert.Equal(t, os.Stdout, Writer(""))
}
