// Package telemetry configures the ambient observability of the CLI.
//
// Logging uses the global zerolog logger (console on stderr by default,
// level from LOG_LEVEL or --verbose). Each orchestrator run can be traced
// with OpenTelemetry, one span per run and per step, exported to stdout or
// an OTLP gRPC collector. Metrics implements engine.Reporter and counts runs,
// steps and remote changes in a Prometheus registry; after each run the
// registry can be written to a node_exporter textfile, and `deploy watch`
// can serve it over HTTP.
package telemetry
