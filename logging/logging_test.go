package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	l, err = ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wsrpc.log")
	opts := DefaultOptions()
	opts.ToConsole = false
	opts.FilePath = path
	opts.Level = "debug"

	l, err := New(opts)
	require.NoError(t, err)
	l.Debug("hello", zap.String("conn_id", "abc"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"conn_id":"abc"`)
}

func TestNewLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsrpc.log")
	opts := Options{Level: "error", FilePath: path, MaxSize: 1}

	l, err := New(opts)
	require.NoError(t, err)
	l.Info("dropped")
	l.Error("kept")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewNoOutputs(t *testing.T) {
	l, err := New(Options{Level: "info"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(Options{Level: "verbose", ToConsole: true})
	assert.Error(t, err)
}
