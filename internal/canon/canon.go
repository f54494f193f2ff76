// Package canon produces deterministic JSON encodings used as identity
// fingerprints for cache keys and entity keys.
package canon

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// api sorts map keys so equal values always encode to equal bytes,
// regardless of map iteration order.
var api = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// Encode returns the canonical JSON encoding of v.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: failed to encode %T: %w", v, err)
	}
	return b, nil
}

// String is Encode returning a string.
func String(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Equal reports whether a and b have the same canonical encoding.
// Values that cannot be encoded are never equal.
func Equal(a, b any) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return string(ea) == string(eb)
}
