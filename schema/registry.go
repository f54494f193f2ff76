// Package schema defines normalizable entity types, the shapes that
// describe where entities occur inside query data, and the registry that
// resolves type names.
package schema

import (
	"sort"
	"sync"
)

// EntityType is a registered normalizable kind.
type EntityType struct {
	// Name identifies the type in the registry and in snapshots.
	Name string

	// Keys lists the fields that together form the identity key.
	Keys []string

	// Shape declares how nested fields are normalized. Fields not listed
	// are stored verbatim.
	Shape map[string]*Shape

	// Transforms apply to this type's fields whenever an instance is
	// denormalized.
	Transforms Transforms
}

// ExtractKey returns the plain identity value of data: the key field value
// when the type has a single key, otherwise a []any of the key values in
// declaration order. A missing or null key field is a KeyExtractionError.
func (t *EntityType) ExtractKey(data map[string]any) (any, error) {
	if len(t.Keys) == 1 {
		v, ok := data[t.Keys[0]]
		if !ok || v == nil {
			return nil, &KeyExtractionError{Type: t.Name, Field: t.Keys[0]}
		}
		return v, nil
	}
	values := make([]any, len(t.Keys))
	for i, k := range t.Keys {
		v, ok := data[k]
		if !ok || v == nil {
			return nil, &KeyExtractionError{Type: t.Name, Field: k}
		}
		values[i] = v
	}
	return values, nil
}

// IsKeyField reports whether field is one of the type's key fields.
func (t *EntityType) IsKeyField(field string) bool {
	for _, k := range t.Keys {
		if k == field {
			return true
		}
	}
	return false
}

// Registry maps type names to entity types.
//
// Contract:
// - Concurrency: safe for concurrent use; reads do not block each other.
// - Registration is append-only until Reset; a name can be registered once.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*EntityType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*EntityType)}
}

// Register adds t. Registering a second type under an existing name is a
// SchemaError; registering the same *EntityType again is a no-op.
func (r *Registry) Register(t *EntityType) error {
	if t == nil || t.Name == "" {
		return &SchemaError{Reason: "entity type requires a name"}
	}
	if len(t.Keys) == 0 {
		return &SchemaError{Type: t.Name, Reason: "entity type requires at least one key field"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.types[t.Name]; ok {
		if old == t {
			return nil
		}
		return &SchemaError{Type: t.Name, Reason: "duplicate registration"}
	}
	r.types[t.Name] = t
	return nil
}

// Define builds and registers an entity type in one step.
func (r *Registry) Define(name string, keys []string, shape map[string]*Shape) (*EntityType, error) {
	t := &EntityType{Name: name, Keys: keys, Shape: shape}
	if err := r.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MustDefine is Define that panics on error. Intended for package-level
// schema declarations.
func (r *Registry) MustDefine(name string, keys []string, shape map[string]*Shape) *EntityType {
	t, err := r.Define(name, keys, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*EntityType, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &SchemaError{Type: name, Reason: "not registered"}
	}
	return t, nil
}

// Resolve follows placeholders until a non-placeholder shape is reached.
func (r *Registry) Resolve(s *Shape) (*Shape, error) {
	for s != nil && s.kind == KindPlaceholder {
		t, err := r.Lookup(s.name)
		if err != nil {
			return nil, err
		}
		s = Entity(t)
	}
	return s, nil
}

// Types returns the registered types sorted by name.
func (r *Registry) Types() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EntityType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]*EntityType)
}
