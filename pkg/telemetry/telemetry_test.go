package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "refsim", cfg.ServiceName)
	assert.Equal(t, "unknown", cfg.ServiceVersion)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Empty(t, cfg.Headers)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "refsim-test")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer abc, x-team = gc")
	t.Setenv("OTEL_TRACES_SAMPLER", "traceidratio")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := LoadFromEnv()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "refsim-test", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"x-team":        "gc",
	}, cfg.Headers)
	assert.Equal(t, "traceidratio", cfg.Sampler)
	assert.Equal(t, "0.25", cfg.SamplerArg)
}

func TestParseKeyValuePairs(t *testing.T) {
	assert.Empty(t, parseKeyValuePairs(""))
	assert.Equal(t, map[string]string{"a": "1"}, parseKeyValuePairs("a=1"))
	assert.Equal(t, map[string]string{"a": "b=c"}, parseKeyValuePairs("a=b=c"))
	assert.Empty(t, parseKeyValuePairs("=value,,novalue"))
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		sampler string
		arg     string
		want    sdktrace.Sampler
	}{
		{"always_on", "", sdktrace.AlwaysSample()},
		{"always_off", "", sdktrace.NeverSample()},
		{"traceidratio", "0.5", sdktrace.TraceIDRatioBased(0.5)},
		{"parentbased_always_on", "", sdktrace.ParentBased(sdktrace.AlwaysSample())},
		{"", "", sdktrace.AlwaysSample()},
		{"bogus", "", sdktrace.AlwaysSample()},
	}

	for _, tt := range tests {
		got := createSampler(&Config{Sampler: tt.sampler, SamplerArg: tt.arg})
		assert.Equal(t, tt.want.Description(), got.Description(), "sampler %q", tt.sampler)
	}
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, 1.0, parseRatio(""))
	assert.Equal(t, 1.0, parseRatio("junk"))
	assert.Equal(t, 0.25, parseRatio("0.25"))
	assert.Equal(t, 0.0, parseRatio("-3"))
	assert.Equal(t, 1.0, parseRatio("17"))
}

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestBuildResource(t *testing.T) {
	res, err := buildResource(&Config{
		ServiceName:    "refsim",
		ServiceVersion: "1.2.3",
		ResourceAttrs:  map[string]string{"deployment.environment": "test"},
	})
	require.NoError(t, err)

	attrs := res.Attributes()
	found := map[string]string{}
	for _, kv := range attrs {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "refsim", found["service.name"])
	assert.Equal(t, "1.2.3", found["service.version"])
	assert.Equal(t, "test", found["deployment.environment"])
}
