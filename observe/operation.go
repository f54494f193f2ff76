package observe

import "fmt"

// Kind classifies an instrumented operation.
type Kind string

const (
	KindFetch    Kind = "fetch"
	KindMutation Kind = "mutation"
	KindRefetch  Kind = "refetch"
)

// OperationMeta describes one fetch or mutation for telemetry.
type OperationMeta struct {
	Kind     Kind   // required
	Name     string // query or mutation name (required)
	CacheKey string // optional; empty for mutations
}

// Validate reports whether the metadata is usable.
func (m OperationMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingOperationName
	}
	return nil
}

// SpanName returns "graphcache.<kind>.<name>".
func (m OperationMeta) SpanName() string {
	return fmt.Sprintf("graphcache.%s.%s", m.kind(), m.Name)
}

func (m OperationMeta) kind() Kind {
	if m.Kind == "" {
		return KindFetch
	}
	return m.Kind
}
