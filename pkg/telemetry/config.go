package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains the telemetry configuration of the CLI.
type Config struct {
	// ServiceName identifies the tool in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is console or json.
	Format string

	// Output is stderr, stdout or a file path.
	Output string
}

// TracingConfig configures run tracing.
type TracingConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64

	// ExportTimeout bounds each export.
	ExportTimeout time.Duration

	// Headers are sent with every OTLP export.
	Headers map[string]string
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// Namespace prefixes every metric name.
	Namespace string

	// TextfilePath, when set, receives the metrics after every run in the
	// node_exporter textfile format.
	TextfilePath string

	// ListenAddress, when set, serves /metrics for long-running commands.
	ListenAddress string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "deploy",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "deploy",
		},
	}
}

// ApplyEnv overrides the configuration from the environment:
// LOG_LEVEL, LOG_FORMAT, DEPLOY_TRACE_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT,
// OTEL_EXPORTER_OTLP_INSECURE, DEPLOY_METRICS_FILE and DEPLOY_METRICS_ADDR.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := getenv("DEPLOY_TRACE_EXPORTER"); v != "" {
		c.Tracing.Exporter = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		if c.Tracing.Exporter == "none" {
			c.Tracing.Exporter = "otlp"
		}
	}
	if v, err := strconv.ParseBool(getenv("OTEL_EXPORTER_OTLP_INSECURE")); err == nil {
		c.Tracing.Insecure = v
	}
	if v := getenv("DEPLOY_METRICS_FILE"); v != "" {
		c.Metrics.TextfilePath = v
	}
	if v := getenv("DEPLOY_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddress = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("trace endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	return nil
}
