package observe

import (
	"context"
	"time"
)

// CallFunc is the signature of an instrumented fetch or mutate call.
type CallFunc func(ctx context.Context) (any, error)

// Middleware wraps fetch and mutate calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap returns a CallFunc safe for concurrent use.
//   - Errors: errors from the wrapped call are recorded and returned unchanged.
//   - Ownership: results pass through unmodified.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced with
// no-op ones.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver builds a Middleware from obs.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Metrics returns the metrics sink.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the base logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Wrap instruments fn as the operation described by meta.
func (m *Middleware) Wrap(meta OperationMeta, fn CallFunc) CallFunc {
	return func(ctx context.Context) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordOperation(ctx, meta, duration, err)

		log := m.logger.WithOperation(meta)
		fields := []Field{{Key: "duration_ms", Value: float64(duration.Milliseconds())}}
		if err != nil {
			log.Error(ctx, string(meta.kind())+" failed", append(fields, Field{Key: "error", Value: err})...)
		} else {
			log.Debug(ctx, string(meta.kind())+" completed", fields...)
		}
		return result, err
	}
}
