package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()

	log, err := New(config.LoggingConfig{Level: "debug", Format: "console", Directory: dir, MaxSize: 1})
	require.NoError(t, err)

	log.Debug("session completed", zap.String("session_id", "s-1"))
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "quiz-engine.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"session completed"`)
	assert.Contains(t, string(data), `"session_id":"s-1"`)
}

func TestNewLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	log, err := New(config.LoggingConfig{Level: "warn", Directory: dir})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "quiz-engine.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
