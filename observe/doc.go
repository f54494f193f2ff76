// Package observe provides telemetry for graphcache clients.
//
// An Observer bundles an OpenTelemetry tracer and meter with a structured
// Logger. Loggers are available in three backends: the built-in JSON writer,
// zap, and logr. Metrics and Tracer record fetch, mutation, and
// notification activity; Middleware wraps a single fetch or mutate call with
// all three.
//
// The package performs no I/O beyond exporter setup. The client package
// wires an Observer into its fetch and mutation paths.
package observe
