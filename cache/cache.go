package cache

import (
	"errors"
	"fmt"
	"strings"
)

// MaxNameLength is the maximum allowed length for a query or mutation name.
const MaxNameLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidName  = errors.New("cache: name is invalid")
	ErrNameTooLong  = errors.New("cache: name exceeds max length")
	ErrConsistency  = errors.New("cache: inconsistent cache operation")
	ErrEditorClosed = errors.New("cache: editor used outside its update hook")
	ErrNotFound     = errors.New("cache: object not found")
)

// CacheKey identifies a cached query slot. Queries with the same name and
// deep-equal arguments share one CacheKey.
type CacheKey string

// ConsistencyError reports an imperative edit that targets a query slot
// that does not exist and cannot be defaulted.
type ConsistencyError struct {
	Query    string
	CacheKey CacheKey
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache: query %q (%s): %s", e.Query, e.CacheKey, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// ValidateName checks if a query or mutation name is usable as a cache key
// prefix.
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	// Reject names with newlines or carriage returns
	if strings.ContainsAny(name, "\n\r") {
		return ErrInvalidName
	}
	return nil
}
