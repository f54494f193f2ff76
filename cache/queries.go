package cache

import (
	"sort"

	"github.com/jonwraymond/graphcache/selector"
)

// Item is one cached query slot.
type Item struct {
	// Query is the descriptor that last wrote or watched the slot. It is nil
	// for slots restored from a snapshot until a subscriber attaches.
	Query *Query

	// Data is the normalized result: entity references stand in for
	// entities. It is opaque when Selector is nil.
	Data any

	// Selector records which fields of Data were written.
	Selector *selector.Selector
}

// Queries stores query slots keyed by CacheKey.
// It is not safe for concurrent use on its own.
type Queries struct {
	keyer Keyer
	items map[CacheKey]*Item
}

// NewQueries creates an empty query store. If keyer is nil, DefaultKeyer is
// used.
func NewQueries(keyer Keyer) *Queries {
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &Queries{keyer: keyer, items: make(map[CacheKey]*Item)}
}

// CacheKey derives the slot key of q.
func (qs *Queries) CacheKey(q *Query) (CacheKey, error) {
	return qs.keyer.Key(q.Name, q.Args)
}

// FindCacheKey returns the key of the slot holding q, if one is stored.
func (qs *Queries) FindCacheKey(q *Query) (CacheKey, bool) {
	key, err := qs.CacheKey(q)
	if err != nil {
		return "", false
	}
	_, ok := qs.items[key]
	return key, ok
}

// Get returns the slot stored under key.
func (qs *Queries) Get(key CacheKey) (*Item, bool) {
	it, ok := qs.items[key]
	return it, ok
}

// Set stores it under key, replacing any previous slot.
func (qs *Queries) Set(key CacheKey, it *Item) {
	qs.items[key] = it
}

// Delete removes the slot stored under key.
func (qs *Queries) Delete(key CacheKey) bool {
	if _, ok := qs.items[key]; !ok {
		return false
	}
	delete(qs.items, key)
	return true
}

// Keys returns every stored CacheKey in sorted order.
func (qs *Queries) Keys() []CacheKey {
	out := make([]CacheKey, 0, len(qs.items))
	for k := range qs.items {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of stored slots.
func (qs *Queries) Len() int { return len(qs.items) }

// Reset drops every slot.
func (qs *Queries) Reset() {
	qs.items = make(map[CacheKey]*Item)
}
