package observe

import (
	"context"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a *zap.Logger to Logger.
type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger wraps z. A nil z yields a no-op logger.
func NewZapLogger(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z}
}

func newZap(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(ParseLogLevel(level).String())
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func (l *zapLogger) WithOperation(meta OperationMeta) Logger {
	return &zapLogger{z: l.z.With(zapFields(operationFields(meta))...)}
}

func (l *zapLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.z.Info(msg, zapFields(fields)...)
}

func (l *zapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, zapFields(fields)...)
}

func (l *zapLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.z.Error(msg, zapFields(fields)...)
}

func (l *zapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, zapFields(fields)...)
}

func zapFields(fields []Field) []zap.Field {
	fields = redact(fields)
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// logrLogger adapts a logr.Logger to Logger. Warn maps to Info with a
// "level" key because logr has no warning verbosity; Debug maps to V(1).
type logrLogger struct {
	l logr.Logger
}

// NewLogrLogger wraps l.
func NewLogrLogger(l logr.Logger) Logger {
	return &logrLogger{l: l}
}

// LogrFromContext returns a Logger over the logr.Logger stored in ctx, or a
// no-op logger when ctx carries none.
func LogrFromContext(ctx context.Context) Logger {
	l, err := logr.FromContext(ctx)
	if err != nil {
		return NopLogger()
	}
	return NewLogrLogger(l)
}

func (l *logrLogger) WithOperation(meta OperationMeta) Logger {
	return &logrLogger{l: l.l.WithValues(keysAndValues(operationFields(meta))...)}
}

func (l *logrLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.l.Info(msg, keysAndValues(fields)...)
}

func (l *logrLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.l.Info(msg, append(keysAndValues(fields), "level", "warn")...)
}

func (l *logrLogger) Error(_ context.Context, msg string, fields ...Field) {
	var cause error
	kv := make([]any, 0, 2*len(fields))
	for _, f := range redact(fields) {
		if err, ok := f.Value.(error); ok && cause == nil && f.Key == "error" {
			cause = err
			continue
		}
		kv = append(kv, f.Key, f.Value)
	}
	l.l.Error(cause, msg, kv...)
}

func (l *logrLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.l.V(1).Info(msg, keysAndValues(fields)...)
}

func keysAndValues(fields []Field) []any {
	fields = redact(fields)
	kv := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

var (
	_ Logger = (*zapLogger)(nil)
	_ Logger = (*logrLogger)(nil)
)
