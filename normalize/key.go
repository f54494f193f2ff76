package normalize

import (
	"sort"
	"sync"

	"github.com/jonwraymond/graphcache/internal/canon"
	"github.com/jonwraymond/graphcache/schema"
)

// Key is the canonical identity of one entity instance. Within one cache
// instance there is exactly one *Key per (type, plain key) pair, so keys
// are compared by pointer.
type Key struct {
	typeName  string
	value     any
	canonical string
}

// NewKey builds an uninterned key. Most callers want Keys.Resolve instead.
func NewKey(typeName string, plain any) (*Key, error) {
	c, err := canon.String(plain)
	if err != nil {
		return nil, err
	}
	return &Key{typeName: typeName, value: plain, canonical: c}, nil
}

// Type returns the entity type name.
func (k *Key) Type() string { return k.typeName }

// Value returns the plain key: a scalar, or []any for composite keys.
func (k *Key) Value() any { return k.value }

// Canonical returns the canonical JSON of the plain key.
func (k *Key) Canonical() string { return k.canonical }

// String renders the key as Type:canonical.
func (k *Key) String() string { return k.typeName + ":" + k.canonical }

// Ref stands in for a nested entity inside a normalized result.
type Ref struct {
	Type *schema.EntityType
	Key  *Key
}

// String renders the reference for diagnostics.
func (r *Ref) String() string { return "ref(" + r.Key.String() + ")" }

// KeyLookup finds already-interned keys.
type KeyLookup interface {
	LookupKey(typeName, canonical string) (*Key, bool)
}

// Keys interns identity keys. Keys are never forgotten, so an entity that is
// deleted and later re-added keeps its original *Key.
//
// Contract:
// - Concurrency: safe for concurrent use.
type Keys struct {
	mu     sync.RWMutex
	byType map[string]map[string]*Key
}

// NewKeys creates an empty interner.
func NewKeys() *Keys {
	return &Keys{byType: make(map[string]map[string]*Key)}
}

// LookupKey returns the interned key for typeName and canonical.
func (ks *Keys) LookupKey(typeName, canonical string) (*Key, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	k, ok := ks.byType[typeName][canonical]
	return k, ok
}

// Adopt interns k unless an equal key is already interned, and returns the
// canonical instance.
func (ks *Keys) Adopt(k *Key) *Key {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	m := ks.byType[k.typeName]
	if m == nil {
		m = make(map[string]*Key)
		ks.byType[k.typeName] = m
	}
	if existing, ok := m[k.canonical]; ok {
		return existing
	}
	m[k.canonical] = k
	return k
}

// Resolve returns the interned key for (typeName, plain), creating it on
// first use.
func (ks *Keys) Resolve(typeName string, plain any) (*Key, error) {
	k, err := NewKey(typeName, plain)
	if err != nil {
		return nil, err
	}
	if existing, ok := ks.LookupKey(typeName, k.canonical); ok {
		return existing, nil
	}
	return ks.Adopt(k), nil
}

// Len returns the number of interned keys.
func (ks *Keys) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	n := 0
	for _, m := range ks.byType {
		n += len(m)
	}
	return n
}

// Reset forgets every key.
func (ks *Keys) Reset() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.byType = make(map[string]map[string]*Key)
}

// KeySet is a set of identity keys compared by pointer.
type KeySet map[*Key]struct{}

// NewKeySet builds a set from keys.
func NewKeySet(keys ...*Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts k.
func (s KeySet) Add(k *Key) { s[k] = struct{}{} }

// Has reports membership.
func (s KeySet) Has(k *Key) bool {
	_, ok := s[k]
	return ok
}

// AddAll inserts every key of other.
func (s KeySet) AddAll(other KeySet) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Sorted returns the keys ordered by their String form.
func (s KeySet) Sorted() []*Key {
	out := make([]*Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
