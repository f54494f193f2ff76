// Package normalize flattens query data into entity records and entity
// references, and reconstructs views of that data from a selector.
//
// # Normalization
//
// Normalizer.Normalize walks a value against a schema.Shape. Every
// sub-record matched by an Entity shape is replaced by a *Ref, its fields
// are collected into Result.Entities under a canonical *Key, and the
// fields visited are recorded in Result.Selector. Fields not covered by a
// shape are copied verbatim and recorded as selector leaves.
//
// Keys are resolved first from the store's interner (KeyLookup) and then
// from a per-call table, so an entity seen twice in one payload collapses
// into one record under one key.
//
// # Denormalization
//
// Denormalize is the inverse: it resolves references through an
// ObjectReader, emits only selected fields, applies transforms, and drops
// array elements whose reference no longer resolves.
package normalize

import (
	"fmt"
	"reflect"

	"github.com/jonwraymond/graphcache/internal/canon"
	"github.com/jonwraymond/graphcache/schema"
	"github.com/jonwraymond/graphcache/selector"
)

// Result is the output of one normalization.
type Result struct {
	// Data is the rewritten value, with entities replaced by *Ref.
	Data any
	// Selector records the visited fields.
	Selector *selector.Selector
	// Entities holds the records of every entity seen, grouped by key.
	Entities *Entities
}

// Resolver resolves placeholder shapes. *schema.Registry implements it.
type Resolver interface {
	Resolve(s *schema.Shape) (*schema.Shape, error)
}

// Normalizer rewrites data against shapes.
//
// Contract:
// - Concurrency: safe for concurrent use if the KeyLookup is; each call
//   keeps its own temporary key table.
// - Errors: shape and key problems are returned as *schema.ShapeMismatchError,
//   *schema.KeyExtractionError or *schema.SchemaError.
type Normalizer struct {
	resolver Resolver
	keys     KeyLookup
}

// NewNormalizer creates a normalizer. resolver may be nil when no shape
// uses placeholders; keys may be nil for stand-alone use.
func NewNormalizer(resolver Resolver, keys KeyLookup) *Normalizer {
	return &Normalizer{resolver: resolver, keys: keys}
}

// Normalize rewrites data against shape. A nil shape returns data
// unchanged with a nil selector. Nil data yields a nil result, an empty
// selector and no entities.
func (n *Normalizer) Normalize(data any, shape *schema.Shape) (*Result, error) {
	if shape == nil {
		return &Result{Data: data, Entities: NewEntities()}, nil
	}
	r := &run{
		n:        n,
		temp:     make(map[string]map[string]*Key),
		entities: NewEntities(),
	}
	out, sel, err := r.walk(data, shape)
	if err != nil {
		return nil, err
	}
	return &Result{Data: out, Selector: sel, Entities: r.entities}, nil
}

// NormalizeRecord normalizes the fields of an entity record of type t
// without producing a reference for it. Nested entities are collected as
// usual. Used for partial entity updates.
func (n *Normalizer) NormalizeRecord(t *schema.EntityType, data map[string]any) (map[string]any, *Entities, error) {
	r := &run{
		n:        n,
		temp:     make(map[string]map[string]*Key),
		entities: NewEntities(),
	}
	out, _, err := r.fields(data, t.Shape)
	if err != nil {
		return nil, nil, err
	}
	return out, r.entities, nil
}

// run holds per-call state.
type run struct {
	n        *Normalizer
	temp     map[string]map[string]*Key
	entities *Entities
}

func (r *run) resolve(shape *schema.Shape) (*schema.Shape, error) {
	if shape.Kind() != schema.KindPlaceholder {
		return shape, nil
	}
	if r.n.resolver == nil {
		return nil, &schema.SchemaError{Type: shape.Name(), Reason: "placeholder used without a registry"}
	}
	return r.n.resolver.Resolve(shape)
}

func (r *run) walk(data any, shape *schema.Shape) (any, *selector.Selector, error) {
	if data == nil {
		return nil, selector.New(), nil
	}

	shape, err := r.resolve(shape)
	if err != nil {
		return nil, nil, err
	}

	switch shape.Kind() {
	case schema.KindArray:
		elem, err := shape.Elem()
		if err != nil {
			return nil, nil, err
		}
		items, ok := asSlice(data)
		if !ok {
			return nil, nil, &schema.ShapeMismatchError{Expected: "array", Got: fmt.Sprintf("%T", data)}
		}
		out := make([]any, 0, len(items))
		sel := selector.New()
		for _, item := range items {
			v, s, err := r.walk(item, elem)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, v)
			sel = sel.Merge(s)
		}
		return out, sel, nil

	case schema.KindRecord:
		rec, ok := data.(map[string]any)
		if !ok {
			return nil, nil, &schema.ShapeMismatchError{Expected: "record", Got: fmt.Sprintf("%T", data)}
		}
		return r.fieldsOf(rec, shape.Field)

	case schema.KindEntity:
		t := shape.EntityType()
		rec, ok := data.(map[string]any)
		if !ok {
			return nil, nil, &schema.ShapeMismatchError{Expected: "record of type " + t.Name, Got: fmt.Sprintf("%T", data)}
		}
		plain, err := t.ExtractKey(rec)
		if err != nil {
			return nil, nil, err
		}
		key, err := r.key(t, plain)
		if err != nil {
			return nil, nil, err
		}
		out, sel, err := r.fields(rec, t.Shape)
		if err != nil {
			return nil, nil, err
		}
		r.entities.Add(t, key, out)
		return &Ref{Type: t, Key: key}, sel, nil

	default:
		return nil, nil, &schema.SchemaError{Reason: fmt.Sprintf("unknown shape kind %v", shape.Kind())}
	}
}

func (r *run) fields(rec map[string]any, shapes map[string]*schema.Shape) (map[string]any, *selector.Selector, error) {
	return r.fieldsOf(rec, func(f string) (*schema.Shape, bool) {
		s, ok := shapes[f]
		return s, ok
	})
}

// fieldsOf splits rec into shape-covered fields, which recurse, and plain
// fields, which are copied verbatim as selector leaves.
func (r *run) fieldsOf(rec map[string]any, shapeOf func(string) (*schema.Shape, bool)) (map[string]any, *selector.Selector, error) {
	out := make(map[string]any, len(rec))
	sel := selector.New()
	for f, v := range rec {
		s, ok := shapeOf(f)
		if !ok || s == nil {
			out[f] = v
			sel.Add(f)
			continue
		}
		nv, sub, err := r.walk(v, s)
		if err != nil {
			return nil, nil, err
		}
		out[f] = nv
		sel.Set(f, sub)
	}
	return out, sel, nil
}

// key resolves the canonical key: interned keys first, then keys created
// earlier in this call.
func (r *run) key(t *schema.EntityType, plain any) (*Key, error) {
	c, err := canon.String(plain)
	if err != nil {
		return nil, fmt.Errorf("normalize: key of %s: %w", t.Name, err)
	}
	if r.n.keys != nil {
		if k, ok := r.n.keys.LookupKey(t.Name, c); ok {
			return k, nil
		}
	}
	m := r.temp[t.Name]
	if m == nil {
		m = make(map[string]*Key)
		r.temp[t.Name] = m
	}
	if k, ok := m[c]; ok {
		return k, nil
	}
	k := &Key{typeName: t.Name, value: plain, canonical: c}
	m[c] = k
	return k, nil
}

func asSlice(data any) ([]any, bool) {
	switch v := data.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
