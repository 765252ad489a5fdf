package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pushdeploy/pushdeploy/pkg/engine"
)

// Metrics records run and step metrics. It implements engine.Reporter so it
// can be attached to the orchestrator next to the terminal output.
type Metrics struct {
	config MetricsConfig

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	changesTotal  *prometheus.CounterVec
	lastRunTime   *prometheus.GaugeVec
	lastRunStatus *prometheus.GaugeVec

	registry *prometheus.Registry
}

var _ engine.Reporter = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished deployment runs",
			},
			[]string{"project", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"project", "status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of completed steps by outcome",
			},
			[]string{"state", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each step in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"state"},
		),
		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_changes_total",
				Help:      "Total number of corrective actions applied to remote hosts",
			},
			[]string{"state"},
		),
		lastRunTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run of a project finished",
			},
			[]string{"project"},
		),
		lastRunStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "Whether the last run of a project succeeded (1) or failed (0)",
			},
			[]string{"project"},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stepsTotal,
		m.stepDuration,
		m.changesTotal,
		m.lastRunTime,
		m.lastRunStatus,
	)

	return m
}

// Enabled reports whether metrics are collected.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Registry returns the registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted implements engine.Reporter.
func (m *Metrics) RunStarted(*engine.Run) {}

// StepCompleted implements engine.Reporter.
func (m *Metrics) StepCompleted(_ *engine.Run, step engine.StepResult) {
	if !m.Enabled() {
		return
	}

	state := string(step.State)
	m.stepsTotal.WithLabelValues(state, string(step.Outcome)).Inc()
	m.stepDuration.WithLabelValues(state).Observe(step.Duration.Seconds())
	if len(step.Changes) > 0 {
		m.changesTotal.WithLabelValues(state).Add(float64(len(step.Changes)))
	}
}

// RunFinished implements engine.Reporter. When a textfile path is configured
// the registry is written there.
func (m *Metrics) RunFinished(run *engine.Run) {
	if !m.Enabled() {
		return
	}

	project := run.Project
	if project == "" {
		project = "unknown"
	}
	status := string(run.Status)

	m.runsTotal.WithLabelValues(project, status).Inc()
	m.runDuration.WithLabelValues(project, status).Observe(run.Duration().Seconds())
	m.lastRunTime.WithLabelValues(project).Set(float64(run.FinishedAt.Unix()))

	success := 0.0
	if run.Status == engine.RunStatusSucceeded {
		success = 1
	}
	m.lastRunStatus.WithLabelValues(project).Set(success)

	if m.config.TextfilePath != "" {
		if err := m.WriteTextfile(m.config.TextfilePath); err != nil {
			log.Warn().Err(err).Str("path", m.config.TextfilePath).Msg("failed to write metrics")
		}
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.Enabled() {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on the configured address until ctx is done.
func (m *Metrics) Serve(ctx context.Context) error {
	if !m.Enabled() || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", m.config.ListenAddress).Msg("serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
