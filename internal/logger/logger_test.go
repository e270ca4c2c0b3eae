package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, WarnLevel)

	log.Info("hidden %d", 1)
	log.Warn("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "warn", record["level"])
	assert.Equal(t, "shown 2", record["message"])

	buf.Reset()
	log.SetLevel(DebugLevel)
	log.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := NewLogger(LogConfig{Output: "file", FilePath: path, Level: "debug"})
	require.NoError(t, err)
	log.Debug("written to file")
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, err := NewLogger(LogConfig{Output: "syslog"})
	assert.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	log.Info("nothing")
	log.Error("still nothing")
}
