package observability

import (
	"strings"

	"github.com/smallbiznis/seatkeeper/internal/config"
)

const defaultServiceName = "seatkeeper"

type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelMetricsEnabled   bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// NewConfig resolves the telemetry settings against the application identity.
// DEPLOYMENT_ENV and SERVICE_VERSION win over the app values when set.
func NewConfig(cfg config.Config) Config {
	t := cfg.Telemetry

	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, defaultServiceName),
		Environment:          firstNonEmpty(t.DeploymentEnv, cfg.Environment),
		Version:              firstNonEmpty(t.ServiceVersionTag, cfg.AppVersion),
		LogLevel:             firstNonEmpty(t.LogLevel, "info"),
		LogFormat:            t.LogFormat,
		OtelEnabled:          t.TracingEnabled,
		OtelMetricsEnabled:   t.MetricsExport,
		OtelExporterEndpoint: t.OTLPEndpoint,
		OtelExporterProtocol: firstNonEmpty(t.OTLPProtocol, "grpc"),
		OtelSamplingRatio:    clampRatio(t.TraceSampleRatio),
	}
	if out.LogFormat == "" {
		out.LogFormat = "json"
		if isDevEnv(out.Environment) {
			out.LogFormat = "console"
		}
	}
	return out
}

// Debug is true for debug level logging or any non-production environment.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug") || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
