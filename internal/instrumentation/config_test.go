package instrumentation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Normalized(t *testing.T) {
	cfg := Config{}.normalized()
	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, ExporterPrometheus, cfg.MetricsExporter)
	assert.Equal(t, ExporterNone, cfg.TracingExporter)
	assert.Equal(t, DefaultExportInterval, cfg.ExportInterval)

	kept := Config{ServiceName: "svc", MetricsExporter: ExporterStdout, ExportInterval: time.Minute}.normalized()
	assert.Equal(t, "svc", kept.ServiceName)
	assert.Equal(t, ExporterStdout, kept.MetricsExporter)
	assert.Equal(t, time.Minute, kept.ExportInterval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "zero value", config: Config{}},
		{name: "otlp metrics with endpoint", config: Config{MetricsExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"}},
		{name: "stdout tracing", config: Config{TracingExporter: ExporterStdout, SampleRate: 1}},
		{name: "sample rate above one", config: Config{SampleRate: 1.5}, wantErr: "sample rate"},
		{name: "negative sample rate", config: Config{SampleRate: -0.1}, wantErr: "sample rate"},
		{name: "unknown metrics exporter", config: Config{MetricsExporter: "statsd"}, wantErr: "invalid metrics exporter"},
		{name: "none is not a metrics exporter", config: Config{MetricsExporter: ExporterNone}, wantErr: "invalid metrics exporter"},
		{name: "unknown tracing exporter", config: Config{TracingExporter: "jaeger"}, wantErr: "invalid tracing exporter"},
		{name: "otlp tracing without endpoint", config: Config{TracingExporter: ExporterOTLP}, wantErr: "OTLP endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
