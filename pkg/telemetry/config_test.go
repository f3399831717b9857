package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")

	cfg := LoadFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "heapstream", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.Protocol)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "heapstream-batch")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer tok,X-Team=perf")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "TRUE")

	cfg := LoadFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "heapstream-batch", cfg.ServiceName)
	assert.Equal(t, "https://collector:4317", cfg.Endpoint)
	assert.Equal(t, "Bearer tok", cfg.Headers["Authorization"])
	assert.Equal(t, "perf", cfg.Headers["X-Team"])
	assert.True(t, cfg.Insecure)
}

func TestParseKeyValuePairs(t *testing.T) {
	assert.Empty(t, parseKeyValuePairs(""))

	pairs := parseKeyValuePairs("a=1, b=2,malformed,=skipme")
	assert.Equal(t, "1", pairs["a"])
	assert.Equal(t, "2", pairs["b"])
	assert.Len(t, pairs, 2)
}
