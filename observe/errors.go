package observe

import "errors"

// Configuration errors.
var (
	// ErrMissingServiceName indicates Config.ServiceName is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSamplePct indicates Tracing.SamplePct is not in [0.0, 1.0].
	ErrInvalidSamplePct = errors.New("observe: sample percentage must be between 0.0 and 1.0")

	// ErrInvalidTracingExporter indicates an unknown tracing exporter name.
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")

	// ErrInvalidMetricsExporter indicates an unknown metrics exporter name.
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("observe: invalid log level")

	// ErrInvalidLogBackend indicates an unknown logging backend.
	ErrInvalidLogBackend = errors.New("observe: invalid log backend")
)

// ErrMissingOperationName indicates OperationMeta.Name is empty.
var ErrMissingOperationName = errors.New("observe: operation name is required")

// RedactedFields lists field keys whose values never reach a log sink.
// Query and mutation arguments routinely carry credentials.
var RedactedFields = []string{
	"args",
	"variables",
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"credential",
}

var redacted = func() map[string]bool {
	m := make(map[string]bool, len(RedactedFields))
	for _, k := range RedactedFields {
		m[k] = true
	}
	return m
}()

func isRedactedField(key string) bool { return redacted[key] }
