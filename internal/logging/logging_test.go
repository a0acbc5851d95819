package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portlease.log")

	l, err := New(WithLogLevel("debug"), WithLogFormat(LogFormatJSON), WithOutputPaths([]string{path}))
	require.NoError(t, err)
	l.Info("port registered", zap.Int("port", 8080))
	_ = l.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var last map[string]any
	entries := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.NoError(t, json.Unmarshal([]byte(entries[len(entries)-1]), &last))
	assert.Equal(t, "port registered", last["msg"])
	assert.Equal(t, float64(8080), last["port"])
	assert.Equal(t, "info", last["level"])
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portlease.log")

	l, err := New(WithLogLevel("warn"), WithOutputPaths([]string{path}))
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	_ = l.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), "shown")
}
