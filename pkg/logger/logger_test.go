package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.log")
	l, err := New(Config{Level: "info", Encoding: "json", OutputPath: path, Service: "test"})
	require.NoError(t, err)

	l.Info("written")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written"`)
	assert.Contains(t, string(data), `"service":"test"`)
}

func TestGlobalHelpersUseInstalledLogger(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { SetGlobal(prev) })

	core, logs := observer.New(zapcore.DebugLevel)
	SetGlobal(zap.New(core))

	Error("boom", zap.String("k", "v"))
	Warn("careful")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "boom", logs.All()[0].Message)
}
