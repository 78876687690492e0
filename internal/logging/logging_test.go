package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "billr.log")

	logger, closer, err := New(Options{File: path, Level: "debug", MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("interval appended", "app", "Microsoft Word")
	logger.Info("sampler stopped")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `msg="interval appended"`)
	assert.Contains(t, string(data), `app="Microsoft Word"`)
	assert.Contains(t, string(data), "sampler stopped")
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billr.log")

	logger, closer, err := New(Options{File: path, Level: "warn"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_NoOutputs(t *testing.T) {
	logger, closer, err := New(Options{})
	require.NoError(t, err)
	logger.Error("dropped")
	assert.NoError(t, closer.Close())
}
