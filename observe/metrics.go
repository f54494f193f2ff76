package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricOpTotal       = "graphcache.op.total"
	MetricOpErrors      = "graphcache.op.errors"
	MetricOpDuration    = "graphcache.op.duration_ms"
	MetricFetchJoins    = "graphcache.fetch.joins"
	MetricNotifications = "graphcache.notifications"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one completed fetch or mutation.
	RecordOperation(ctx context.Context, meta OperationMeta, duration time.Duration, err error)

	// RecordJoin records a request that joined an in-flight fetch.
	RecordJoin(ctx context.Context, meta OperationMeta)

	// RecordNotification records one subscriber delivery.
	RecordNotification(ctx context.Context)
}

type metricsImpl struct {
	total         metric.Int64Counter
	errors        metric.Int64Counter
	duration      metric.Float64Histogram
	joins         metric.Int64Counter
	notifications metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{}
	var err error

	if m.total, err = meter.Int64Counter(MetricOpTotal,
		metric.WithDescription("Total number of fetches and mutations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter(MetricOpErrors,
		metric.WithDescription("Total number of failed fetches and mutations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram(MetricOpDuration,
		metric.WithDescription("Fetch and mutation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.joins, err = meter.Int64Counter(MetricFetchJoins,
		metric.WithDescription("Requests served by an in-flight fetch"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.notifications, err = meter.Int64Counter(MetricNotifications,
		metric.WithDescription("Subscriber deliveries"),
		metric.WithUnit("{delivery}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func attrs(meta OperationMeta) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("op.kind", string(meta.kind())),
		attribute.String("op.name", meta.Name),
	)
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OperationMeta, duration time.Duration, err error) {
	opt := attrs(meta)
	m.total.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordJoin(ctx context.Context, meta OperationMeta) {
	m.joins.Add(ctx, 1, attrs(meta))
}

func (m *metricsImpl) RecordNotification(ctx context.Context) {
	m.notifications.Add(ctx, 1)
}

type nopMetrics struct{}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) RecordOperation(context.Context, OperationMeta, time.Duration, error) {}
func (nopMetrics) RecordJoin(context.Context, OperationMeta)                           {}
func (nopMetrics) RecordNotification(context.Context)                                  {}
