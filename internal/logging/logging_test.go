package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/vitalwatch/monitor/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNewFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	cfg := config.Default().Log
	cfg.File = path
	cfg.Level = "info"

	logger := NewFileLogger(cfg, "vitalwatch-test")
	logger.Info("poll tick committed")
	logger.Debug("suppressed below level")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"poll tick committed"`)
	assert.Contains(t, out, `"service_name":"vitalwatch-test"`)
	assert.Contains(t, out, `"timestamp"`)
	assert.NotContains(t, out, "suppressed below level")
}
