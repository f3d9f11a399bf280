package telemetry_test

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/hrpay/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{ApplicationName: "payroll-backend"}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.Equal(t, "payroll-backend", p.GetConfig().ApplicationName)
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("requires a server address", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "payroll-backend"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server address is required")
	})

	t.Run("requires an application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "application name is required")
	})
}

func TestWithProfileLabels(t *testing.T) {
	var got string
	telemetry.WithProfileLabels(context.Background(), func(ctx context.Context) {
		got, _ = pprof.Label(ctx, telemetry.ProfileLabelOperation)
	}, telemetry.ProfileLabelOperation, "tax_calculation")
	assert.Equal(t, "tax_calculation", got)

	called := false
	telemetry.WithProfileLabels(context.Background(), func(ctx context.Context) {
		called = true
		_, ok := pprof.Label(ctx, telemetry.ProfileLabelOperation)
		assert.False(t, ok)
	})
	assert.True(t, called)
}

func TestTracerProvider_SpanProfilesNeedTracing(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, tp.EnableSpanProfiles())
}
