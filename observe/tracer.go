package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with operation-specific spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps t. A nil t yields a no-op tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("noop")
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	kv := []attribute.KeyValue{
		attribute.String("op.kind", string(meta.kind())),
		attribute.String("op.name", meta.Name),
		attribute.Bool("op.error", false),
	}
	if meta.CacheKey != "" {
		kv = append(kv, attribute.String("op.cache_key", meta.CacheKey))
	}
	kind := trace.SpanKindClient
	if meta.kind() == KindRefetch {
		kind = trace.SpanKindInternal
	}
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(kv...),
		trace.WithSpanKind(kind),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("op.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
