package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg := Config{ServiceName: "foundreg-server"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.InDelta(t, 1.0, cfg.SampleRatio, 0)
	require.Equal(t, 10*time.Second, cfg.MetricInterval)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{SampleRatio: 1, MetricInterval: time.Second}},
		{"ratio above one", Config{ServiceName: "x", SampleRatio: 1.5, MetricInterval: time.Second}},
		{"negative ratio", Config{ServiceName: "x", SampleRatio: -0.1, MetricInterval: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.Validate())
		})
	}
}

func TestInitTelemetry_InvalidConfig(t *testing.T) {
	_, err := InitTelemetry(context.Background(), Config{ServiceName: "x", SampleRatio: 2})
	require.ErrorContains(t, err, "invalid telemetry config")
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m.AllocationsTotal)
	require.Same(t, m, GetMetrics())

	// Instruments work against the no-op global provider
	m.AllocationsTotal.Add(context.Background(), 1)
}
