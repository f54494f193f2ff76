package observe

import (
	"context"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level. Unknown strings mean info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

var logJSON = jsoniter.Config{SortMapKeys: true}.Froze()

// structuredLogger writes one JSON object per line.
type structuredLogger struct {
	level     LogLevel
	out       *lockedWriter
	baseAttrs map[string]any
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &structuredLogger{
		level:     ParseLogLevel(level),
		out:       &lockedWriter{w: w},
		baseAttrs: map[string]any{},
	}
}

func (l *structuredLogger) WithOperation(meta OperationMeta) Logger {
	attrs := maps.Clone(l.baseAttrs)
	for _, f := range operationFields(meta) {
		attrs[f.Key] = f.Value
	}
	return &structuredLogger{level: l.level, out: l.out, baseAttrs: attrs}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelError, msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields)
}

func (l *structuredLogger) log(level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := make(map[string]any, len(l.baseAttrs)+len(fields)+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	maps.Copy(entry, l.baseAttrs)
	for _, f := range redact(fields) {
		if err, ok := f.Value.(error); ok {
			entry[f.Key] = err.Error()
			continue
		}
		entry[f.Key] = f.Value
	}

	data, err := logJSON.Marshal(entry)
	if err != nil {
		return // drop unencodable entries
	}
	data = append(data, '\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(data)
}

// operationFields renders meta as log fields.
func operationFields(meta OperationMeta) []Field {
	fields := []Field{
		{Key: "op.kind", Value: string(meta.kind())},
		{Key: "op.name", Value: meta.Name},
	}
	if meta.CacheKey != "" {
		fields = append(fields, Field{Key: "op.cache_key", Value: meta.CacheKey})
	}
	return fields
}

// redact returns fields with sensitive values replaced. The input slice is
// never modified.
func redact(fields []Field) []Field {
	if !slices.ContainsFunc(fields, func(f Field) bool { return isRedactedField(f.Key) }) {
		return fields
	}
	out := slices.Clone(fields)
	for i := range out {
		if isRedactedField(out[i].Key) {
			out[i].Value = "[REDACTED]"
		}
	}
	return out
}

type nopLogger struct{}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (nopLogger) Debug(context.Context, string, ...Field) {}
func (l nopLogger) WithOperation(OperationMeta) Logger    { return l }

var (
	_ Logger = (*structuredLogger)(nil)
	_ Logger = nopLogger{}
)
