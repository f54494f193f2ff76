// Package exporters builds the OpenTelemetry exporters an Observer ships
// spans and metrics through.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrUnknownExporter indicates an exporter name this package cannot build.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrEndpointNotConfigured indicates a required endpoint variable is unset.
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

// Stdout is where the stdout exporters write. Tests may replace it.
var Stdout io.Writer = os.Stdout

// firstEnv returns the first non-empty value among vars.
func firstEnv(vars ...string) (string, error) {
	for _, v := range vars {
		if s := os.Getenv(v); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: set one of %v", ErrEndpointNotConfigured, vars)
}

// NewTracingExporter creates a span exporter.
// Supported names: stdout, otlp, jaeger, none (or empty).
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(Stdout))
	case "otlp":
		if _, err := firstEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "jaeger":
		// Jaeger ingests OTLP natively.
		if _, err := firstEnv("OTEL_EXPORTER_JAEGER_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}

// NewMetricsReader creates a metrics reader.
// Supported names: stdout, otlp, prometheus, none (or empty).
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	switch name {
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(Stdout))
		if err != nil {
			return nil, fmt.Errorf("stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "otlp":
		if _, err := firstEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("otlp metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "prometheus":
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		return exp, nil
	case "none", "":
		return sdkmetric.NewManualReader(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}
