package cache

import (
	"context"

	"github.com/jonwraymond/graphcache/schema"
)

// FetchFunc loads a query result. Timeouts are the function's concern.
type FetchFunc func(ctx context.Context, args any) (any, error)

// MutateFunc performs a mutation and returns its result.
type MutateFunc func(ctx context.Context, args any) (any, error)

// MergeFunc combines the stored result of a paginated query with the
// result of the next page.
type MergeFunc func(existing, incoming any) any

// UpdateInfo is passed to update functions and hooks.
type UpdateInfo struct {
	// Name is the mutation or query that triggered the update.
	Name string
	// Result is the triggering operation's result view.
	Result any
	// Args are the triggering operation's arguments.
	Args any
	// Optimistic is true while applying an optimistic response.
	Optimistic bool
}

// UpdateFunc computes a cached query's new value from its current value.
type UpdateFunc func(current any, info UpdateInfo) any

// Query describes a cacheable read.
type Query struct {
	// Name identifies the fetch function. It is the cache key prefix.
	Name string

	// Args are compared by deep equality to find the cache slot.
	Args any

	// Context is handed to hooks untouched.
	Context any

	// Shape declares how the result is normalized. Nil stores the result
	// opaquely.
	Shape *schema.Shape

	// Merge enables FetchMore; it folds each further page into the slot.
	Merge MergeFunc

	// Transforms apply when the result is denormalized.
	Transforms schema.Transforms

	// Updates maps a mutation or query name to a function that rewrites this
	// query's cached value whenever that operation completes.
	Updates map[string]UpdateFunc

	// Fetch loads the data. Local queries have none.
	Fetch FetchFunc

	// Local marks a query whose value lives only in the cache.
	Local bool

	// Default seeds a local query slot on first use.
	Default any
}

// WithArgs returns a shallow copy of q with different arguments.
func (q *Query) WithArgs(args any) *Query {
	cp := *q
	cp.Args = args
	return &cp
}

// Mutation describes a write.
type Mutation struct {
	// Name identifies the mutate function and selects the Updates entries
	// of cached queries.
	Name string

	// Args are passed to Mutate and to every update function.
	Args any

	// Context is handed to hooks untouched.
	Context any

	// Shape declares how the result is normalized. Nil skips normalization.
	Shape *schema.Shape

	// Transforms apply to the result view.
	Transforms schema.Transforms

	// Optimistic, when non-nil, is applied as the result on the next
	// scheduler tick unless the real result arrived first.
	Optimistic any

	// BeforeQueryUpdates runs inside the same atomic step as the
	// normalization of the result, with a restricted cache editor.
	BeforeQueryUpdates func(e *Editor, info UpdateInfo) error

	// AfterQueryUpdates runs once the cache is updated. It runs
	// independently unless SyncMode is set.
	AfterQueryUpdates func(ctx context.Context, store Store, info UpdateInfo) error

	// SyncMode makes completion wait for AfterQueryUpdates and surfaces its
	// error through the mutation's error callback.
	SyncMode bool

	// Mutate performs the write. Local mutations have none.
	Mutate MutateFunc
}

// Store is the public cache facade handed to AfterQueryUpdates.
type Store interface {
	Query(ctx context.Context, q *Query) (any, error)
	Mutate(ctx context.Context, m *Mutation) (any, error)
	GetQueryData(q *Query) (any, bool)
	SetQueryData(q *Query, fn func(current any) any) error
	RefetchQueries(ctx context.Context, match func(q *Query) bool) error
	ResetStore(ctx context.Context) error
	DeleteQuery(q *Query) bool
}
