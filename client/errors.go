package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNameConflict indicates a query or mutation name already bound to a
	// different fetch or mutate function.
	ErrNameConflict = errors.New("client: name bound to a different function")

	// ErrNoFetch indicates a non-local query without a Fetch function.
	ErrNoFetch = errors.New("client: query has no fetch function")

	// ErrNoMutate indicates a remote mutation without a Mutate function.
	ErrNoMutate = errors.New("client: mutation has no mutate function")

	// ErrNotPaginated indicates FetchMore on a query without a Merge function.
	ErrNotPaginated = errors.New("client: query has no merge function")

	// ErrClosed indicates use of a closed Client.
	ErrClosed = errors.New("client: closed")
)

// panicError carries a value recovered from a caller-supplied function.
type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
