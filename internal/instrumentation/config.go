package instrumentation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Exporter names accepted in Config.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultServiceName is the OpenTelemetry service.name.
const DefaultServiceName = "healthcal"

// DefaultExportInterval is how often push readers (otlp, stdout) export.
const DefaultExportInterval = 10 * time.Second

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterNone, ExporterOTLP, ExporterStdout}
)

// Config selects what the serve command exports. The command fills it from
// the [telemetry] section of the configuration file.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool

	// MetricsExporter is prometheus (pull, the default), otlp or stdout.
	MetricsExporter string
	// TracingExporter is none (the default), otlp or stdout.
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without scheme.
	OTLPEndpoint string
	OTLPInsecure bool

	// SampleRate is the parent-based trace ratio, 0 to 1.
	SampleRate float64

	// AuditLogging emits one log record per tool invocation.
	AuditLogging bool

	ExportInterval time.Duration
}

// normalized fills empty fields with their defaults.
func (c Config) normalized() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.MetricsExporter == "" {
		c.MetricsExporter = ExporterPrometheus
	}
	if c.TracingExporter == "" {
		c.TracingExporter = ExporterNone
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = DefaultExportInterval
	}
	return c
}

// Validate reports the first setting that cannot work. Empty exporters
// are valid and mean the defaults.
func (c Config) Validate() error {
	c = c.normalized()
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("trace sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	if !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %s", c.MetricsExporter, strings.Join(metricsExporters, ", "))
	}
	if !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %s", c.TracingExporter, strings.Join(tracingExporters, ", "))
	}
	if c.usesOTLP() && c.OTLPEndpoint == "" {
		return errors.New("an OTLP endpoint is required when an exporter is otlp")
	}
	return nil
}

func (c Config) usesOTLP() bool {
	return c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP
}
