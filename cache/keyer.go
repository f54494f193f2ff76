package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/jonwraymond/graphcache/internal/canon"
)

// Keyer derives cache keys from a query name and its arguments.
//
// Contract:
// - Determinism: deep-equal arguments must produce the same key, regardless
//   of map iteration order or instance identity.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from a query name and arguments.
	Key(name string, args any) (CacheKey, error)
}

// DefaultKeyer generates xxhash-based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <name>:<hash>
// where hash is the 16 hex digit xxhash64 of the canonical JSON of args.
func (k *DefaultKeyer) Key(name string, args any) (CacheKey, error) {
	canonical, err := canon.Encode(args)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize arguments of %q: %w", name, err)
	}
	return CacheKey(fmt.Sprintf("%s:%016x", name, xxhash.Sum64(canonical))), nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
