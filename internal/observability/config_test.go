package observability

import (
	"testing"

	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigResolvesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "production",
		AppVersion:   " 1.2.0 ",
		OTLPEndpoint: "collector:4317",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			LogFormat:     "json",
			OTelEnabled:   true,
			OTelProtocol:  "http",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "nexus360", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
	assert.True(t, cfg.Logger().IncludeCaller)
	assert.Equal(t, "collector:4317", cfg.Tracing().ExporterEndpoint)
}

func TestLoadConfigWithoutEndpointDisablesOtel(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "test",
		Telemetry:   config.TelemetryConfig{OTelEnabled: true},
	})

	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Metrics().Enabled)
	assert.True(t, cfg.Debug())
}
