package cache

import (
	"sort"

	"github.com/jonwraymond/graphcache/normalize"
)

// Tracker maps active query slots to the entity keys they read, with a
// reverse index so a write finds its dependents without scanning every
// active query.
// It is not safe for concurrent use on its own.
type Tracker struct {
	deps  map[CacheKey]normalize.KeySet
	index map[*normalize.Key]map[CacheKey]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		deps:  make(map[CacheKey]normalize.KeySet),
		index: make(map[*normalize.Key]map[CacheKey]struct{}),
	}
}

// Track marks key active and replaces its dependency set.
func (t *Tracker) Track(key CacheKey, deps normalize.KeySet) {
	t.unindex(key)
	if deps == nil {
		deps = make(normalize.KeySet)
	}
	t.deps[key] = deps
	for k := range deps {
		set := t.index[k]
		if set == nil {
			set = make(map[CacheKey]struct{})
			t.index[k] = set
		}
		set[key] = struct{}{}
	}
}

// Untrack marks key inactive.
func (t *Tracker) Untrack(key CacheKey) {
	t.unindex(key)
	delete(t.deps, key)
}

func (t *Tracker) unindex(key CacheKey) {
	for k := range t.deps[key] {
		set := t.index[k]
		delete(set, key)
		if len(set) == 0 {
			delete(t.index, k)
		}
	}
}

// IsActive reports whether key has at least one subscriber.
func (t *Tracker) IsActive(key CacheKey) bool {
	_, ok := t.deps[key]
	return ok
}

// Deps returns the dependency set recorded for key.
func (t *Tracker) Deps(key CacheKey) normalize.KeySet {
	return t.deps[key]
}

// Active returns every active key in sorted order.
func (t *Tracker) Active() []CacheKey {
	out := make([]CacheKey, 0, len(t.deps))
	for k := range t.deps {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Affected returns the active keys that must be re-delivered after a write
// that touched the given entities and wrote the given slots. Written slots
// come first in the order given, then dependents in sorted order.
func (t *Tracker) Affected(touched normalize.KeySet, written ...CacheKey) []CacheKey {
	seen := make(map[CacheKey]struct{})
	var out []CacheKey
	for _, key := range written {
		if _, dup := seen[key]; dup || !t.IsActive(key) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	var deps []CacheKey
	for k := range touched {
		for key := range t.index[k] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			deps = append(deps, key)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return append(out, deps...)
}

// ClearDeps empties every dependency set while keeping keys active.
func (t *Tracker) ClearDeps() {
	for key := range t.deps {
		t.deps[key] = make(normalize.KeySet)
	}
	t.index = make(map[*normalize.Key]map[CacheKey]struct{})
}

// Len returns the number of active keys.
func (t *Tracker) Len() int { return len(t.deps) }
