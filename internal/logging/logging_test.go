package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("bridge listening", zap.String("addr", "localhost:8765"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "bridge listening", entry["msg"])
	assert.Equal(t, "localhost:8765", entry["addr"])
	assert.Contains(t, entry, "ts")
}

func TestNewDebugConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Debug: true, Output: &buf})
	require.NoError(t, err)

	logger.Debug("frame received", zap.Int("bytes", 12))
	require.NoError(t, logger.Sync())

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "frame received")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)
}

func TestNewWritesFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "bridge.log")

	logger, err := New(Options{Output: &buf, File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Warn("broker lost")
	require.NoError(t, logger.Sync())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"msg":"broker lost"`)
	assert.Contains(t, buf.String(), "broker lost")
}
