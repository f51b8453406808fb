package observability

import (
	"testing"

	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaultsFormatByEnvironment(t *testing.T) {
	dev := NewConfig(config.Config{Environment: "development"})
	assert.Equal(t, "console", dev.LogFormat)
	assert.Equal(t, defaultServiceName, dev.ServiceName)
	assert.Equal(t, "info", dev.LogLevel)
	assert.True(t, dev.Debug())

	prod := NewConfig(config.Config{Environment: "production", AppName: "seats"})
	assert.Equal(t, "json", prod.LogFormat)
	assert.Equal(t, "seats", prod.ServiceName)
	assert.False(t, prod.Debug())
}

func TestNewConfigPrefersDeploymentOverrides(t *testing.T) {
	cfg := NewConfig(config.Config{
		Environment: "development",
		AppVersion:  "0.1.0",
		Telemetry: config.TelemetryConfig{
			LogFormat:         "json",
			DeploymentEnv:     "staging",
			ServiceVersionTag: "2026.10.1",
			TraceSampleRatio:  3,
		},
	})

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "2026.10.1", cfg.Version)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
}
