package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch operations.
var (
	// ErrFetch matches every error reported by a fetch or mutate function.
	ErrFetch = errors.New("fetch: request failed")

	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("fetch: invalid policy")

	// ErrBreakerOpen is returned by a Runner whose breaker is open.
	ErrBreakerOpen = errors.New("fetch: breaker open")
)

// FetchError wraps a failure of a caller-supplied fetch or mutate function.
// It matches both ErrFetch and the underlying cause with errors.Is.
type FetchError struct {
	// Key identifies the request, usually a cache key.
	Key string
	// Err is the underlying cause.
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// Wrap returns err as a *FetchError for key. Existing FetchErrors are
// returned unchanged; nil stays nil.
func Wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Key: key, Err: err}
}

// recovered converts a recovered panic value into an error.
func recovered(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
