package observe

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/graphcache/observe/exporters"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string        `toml:"service_name"`
	Version     string        `toml:"version"`
	Tracing     TracingConfig `toml:"tracing"`
	Metrics     MetricsConfig `toml:"metrics"`
	Logging     LoggingConfig `toml:"logging"`
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool    `toml:"enabled"`
	Exporter  string  `toml:"exporter"`   // otlp|jaeger|stdout|none
	SamplePct float64 `toml:"sample_pct"` // 0.0-1.0
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Exporter string `toml:"exporter"` // otlp|prometheus|stdout|none
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`   // debug|info|warn|error
	Backend string `toml:"backend"` // json|zap|logr; empty means json
}

var (
	validTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	validMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	validLogLevels        = []string{"debug", "info", "warn", "error", ""}
	validLogBackends      = []string{"json", "zap", "logr", ""}
)

// DefaultConfig returns a configuration with every subsystem disabled.
func DefaultConfig(service string) Config {
	return Config{
		ServiceName: service,
		Tracing:     TracingConfig{Exporter: "none", SamplePct: 1.0},
		Metrics:     MetricsConfig{Exporter: "none"},
		Logging:     LoggingConfig{Level: "info", Backend: "json"},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}

	if c.Tracing.Enabled {
		if !slices.Contains(validTracingExporters, c.Tracing.Exporter) {
			return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter)
		}
		if c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1.0 {
			return fmt.Errorf("%w: got %f", ErrInvalidSamplePct, c.Tracing.SamplePct)
		}
	}

	if c.Metrics.Enabled && !slices.Contains(validMetricsExporters, c.Metrics.Exporter) {
		return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
	}

	if c.Logging.Enabled {
		if !slices.Contains(validLogLevels, c.Logging.Level) {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
		}
		if !slices.Contains(validLogBackends, c.Logging.Backend) {
			return fmt.Errorf("%w: %q", ErrInvalidLogBackend, c.Logging.Backend)
		}
	}

	return nil
}

// Observer provides access to telemetry primitives.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown should be idempotent and return every provider error joined.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes and stops the telemetry providers.
	Shutdown(ctx context.Context) error
}

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// WithOperation returns a logger that tags every entry with meta.
	WithOperation(meta OperationMeta) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

type observer struct {
	tracer         trace.Tracer
	meter          metric.Meter
	logger         Logger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// NewObserver creates a new Observer with the given configuration.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs := &observer{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		tp, err := setupTracing(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		obs.tracerProvider = tp
		obs.tracer = tp.Tracer(cfg.ServiceName)
	} else {
		obs.tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	if cfg.Metrics.Enabled {
		mp, err := setupMetrics(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		obs.meterProvider = mp
		obs.meter = mp.Meter(cfg.ServiceName)
	} else {
		obs.meter = noop.NewMeterProvider().Meter("noop")
	}

	obs.logger, err = newBackendLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

func newBackendLogger(cfg LoggingConfig) (Logger, error) {
	if !cfg.Enabled {
		return NopLogger(), nil
	}
	switch cfg.Backend {
	case "zap", "logr":
		zl, err := newZap(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		if cfg.Backend == "logr" {
			return NewLogrLogger(zapr.NewLogger(zl)), nil
		}
		return NewZapLogger(zl), nil
	default:
		return NewLogger(cfg.Level), nil
	}
}

func setupTracing(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.Tracing.SamplePct >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.Tracing.SamplePct <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.Tracing.SamplePct)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func setupMetrics(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics reader: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NopObserver returns an Observer whose tracer, meter, and logger discard
// everything.
func NopObserver() Observer {
	return &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  noop.NewMeterProvider().Meter("noop"),
		logger: NopLogger(),
	}
}
