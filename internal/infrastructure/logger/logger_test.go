package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payroll.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path}, "payroll-backend")
	require.NoError(t, err)

	l.Info("period locked")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"period locked"`)
	assert.Contains(t, string(data), `"service":"payroll-backend"`)
}

func TestNew_UnwritableFile(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")}, "")
	assert.Error(t, err)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	l, err := New(nil, "")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
