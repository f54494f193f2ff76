package cache

import (
	"sort"

	"github.com/jonwraymond/graphcache/normalize"
	"github.com/jonwraymond/graphcache/schema"
)

// Objects stores entity records keyed by interned identity keys.
// It is not safe for concurrent use on its own; the Container serializes
// access.
type Objects struct {
	keys    *normalize.Keys
	records map[*normalize.Key]*object
}

type object struct {
	t   *schema.EntityType
	rec map[string]any
}

// NewObjects creates an empty object store.
func NewObjects() *Objects {
	return &Objects{
		keys:    normalize.NewKeys(),
		records: make(map[*normalize.Key]*object),
	}
}

// Keys returns the key interner shared with the normalizer.
func (o *Objects) Keys() *normalize.Keys { return o.keys }

// Get returns the record stored under k.
func (o *Objects) Get(k *normalize.Key) (map[string]any, bool) {
	obj, ok := o.records[k]
	if !ok {
		return nil, false
	}
	return obj.rec, true
}

// Type returns the entity type of the record stored under k.
func (o *Objects) Type(k *normalize.Key) (*schema.EntityType, bool) {
	obj, ok := o.records[k]
	if !ok {
		return nil, false
	}
	return obj.t, true
}

// Set overlays rec onto the record stored under k, creating it if absent.
func (o *Objects) Set(t *schema.EntityType, k *normalize.Key, rec map[string]any) {
	obj, ok := o.records[k]
	if !ok {
		obj = &object{t: t, rec: make(map[string]any, len(rec))}
		o.records[k] = obj
	}
	for f, v := range rec {
		obj.rec[f] = v
	}
}

// Delete removes the record stored under k. The key itself stays interned.
func (o *Objects) Delete(k *normalize.Key) bool {
	if _, ok := o.records[k]; !ok {
		return false
	}
	delete(o.records, k)
	return true
}

// AddObjects overlays every collected entity onto the store and returns the
// keys it touched. Keys are interned as they are stored; ents must come
// from a normalizer that used this store's interner in the same locked step,
// so every reference in the batch already points at the interned instance.
func (o *Objects) AddObjects(ents *normalize.Entities) normalize.KeySet {
	touched := make(normalize.KeySet, ents.Len())
	for _, e := range ents.List() {
		k := o.keys.Adopt(e.Key)
		o.Set(e.Type, k, e.Record)
		touched.Add(k)
	}
	return touched
}

// InternKey returns the interned key for t and a plain key value, creating
// it on first use.
func (o *Objects) InternKey(t *schema.EntityType, plain any) (*normalize.Key, error) {
	return o.keys.Resolve(t.Name, plain)
}

// LookupKey returns the interned key for a type name and canonical key
// without creating it.
func (o *Objects) LookupKey(typeName, canonical string) (*normalize.Key, bool) {
	return o.keys.LookupKey(typeName, canonical)
}

// Each calls fn for every stored record, ordered by key.
func (o *Objects) Each(fn func(t *schema.EntityType, k *normalize.Key, rec map[string]any)) {
	keys := make([]*normalize.Key, 0, len(o.records))
	for k := range o.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		obj := o.records[k]
		fn(obj.t, k, obj.rec)
	}
}

// Len returns the number of stored records.
func (o *Objects) Len() int { return len(o.records) }

// Reset drops every record and every interned key.
func (o *Objects) Reset() {
	o.records = make(map[*normalize.Key]*object)
	o.keys.Reset()
}

var _ normalize.ObjectReader = (*Objects)(nil)
