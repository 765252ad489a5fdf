package telemetry

import (
	"context"
	"errors"
	"io"
)

// Telemetry bundles the process-wide logging, tracing and metrics setup.
type Telemetry struct {
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config

	logCloser io.Closer
}

// New validates cfg, configures the global logger and builds the tracer and
// metrics. traceOut receives stdout-exporter spans; nil means stderr.
func New(ctx context.Context, cfg *Config, traceOut io.Writer) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	closer, err := SetupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(ctx, cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, traceOut)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Telemetry{
		Tracer:    tracer,
		Metrics:   NewMetrics(cfg.Metrics),
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// Shutdown flushes spans and releases the log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Tracer.Shutdown(ctx),
		t.logCloser.Close(),
	)
}
