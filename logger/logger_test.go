package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailingset/mailingset/config"
)

func TestInitialize_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailingset.log")

	f, err := Initialize(config.LoggingConfig{Output: path, Format: "json", Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, f)
	defer f.Close()

	Info("test message", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
}

func TestInitialize_StdoutReturnsNoFile(t *testing.T) {
	f, err := Initialize(config.LoggingConfig{Output: "stdout"})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestInitialize_UnwritableFileFallsBackToStderr(t *testing.T) {
	f, err := Initialize(config.LoggingConfig{Output: "/nonexistent-dir/mailingset.log"})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseLogLevel(t *testing.T) {
	assert.NotEqual(t, parseLogLevel("debug"), parseLogLevel("error"))
}

func TestGet_FallsBackToDefaultWhenUninitialized(t *testing.T) {
	globalLogger = nil
	assert.NotNil(t, Get())
}
