package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below unwrap to these, so callers can
// match with errors.Is and inspect details with errors.As.
var (
	ErrSchema        = errors.New("schema: invalid schema")
	ErrShapeMismatch = errors.New("schema: data does not match shape")
	ErrKeyExtraction = errors.New("schema: cannot extract entity key")
)

// SchemaError reports a registration or lookup problem.
type SchemaError struct {
	Type   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: type %q: %s", e.Type, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ShapeMismatchError reports data (or a shape) that does not fit the
// expected structure.
type ShapeMismatchError struct {
	// Expected names the structure that was required, e.g. "array".
	Expected string
	// Got describes what was found instead.
	Got string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("schema: shape mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// KeyExtractionError reports an entity missing one of its key fields.
type KeyExtractionError struct {
	Type  string
	Field string
}

func (e *KeyExtractionError) Error() string {
	return fmt.Sprintf("schema: type %q: missing key field %q", e.Type, e.Field)
}

func (e *KeyExtractionError) Unwrap() error { return ErrKeyExtraction }
