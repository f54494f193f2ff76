package cache

import (
	"fmt"

	"github.com/jonwraymond/graphcache/normalize"
	"github.com/jonwraymond/graphcache/schema"
)

// Editor edits the store from inside a Container step. It is only valid
// until the hook it was handed to returns; later calls fail with
// ErrEditorClosed or report nothing found.
//
// Contract:
// - Concurrency: must only be used by the goroutine running the hook.
// - Editor methods must not call back into the Container.
type Editor struct {
	c       *Container
	touched normalize.KeySet
	written []CacheKey
	closed  bool
}

func (c *Container) newEditor() *Editor {
	return &Editor{c: c, touched: make(normalize.KeySet)}
}

func (e *Editor) close() { e.closed = true }

// Type looks up a registered entity type by name.
func (e *Editor) Type(name string) (*schema.EntityType, error) {
	return e.c.registry.Lookup(name)
}

// ReadQuery returns the current view of q's slot.
func (e *Editor) ReadQuery(q *Query) (any, bool) {
	if e.closed {
		return nil, false
	}
	key, err := e.c.queries.CacheKey(q)
	if err != nil {
		return nil, false
	}
	it, ok := e.c.queries.Get(key)
	if !ok {
		return nil, false
	}
	view, _ := e.c.viewLocked(it, q)
	return view, true
}

// UpdateQuery replaces q's slot with fn applied to its current view. The
// result is normalized against q's shape.
func (e *Editor) UpdateQuery(q *Query, fn func(current any) any) error {
	if e.closed {
		return ErrEditorClosed
	}
	key, err := e.c.queries.CacheKey(q)
	if err != nil {
		return err
	}

	var current any
	if it, ok := e.c.queries.Get(key); ok {
		current, _ = e.c.viewLocked(it, q)
	} else if q.Local {
		current = q.Default
	} else {
		return &ConsistencyError{Query: q.Name, CacheKey: key, Reason: "query is not cached"}
	}

	touched, err := e.c.writeLocked(key, q, fn(current))
	if err != nil {
		return err
	}
	e.touched.AddAll(touched)
	e.written = append(e.written, key)
	return nil
}

// AddObject normalizes data as an entity of type t, merges it into the
// store and returns a reference to it.
func (e *Editor) AddObject(t *schema.EntityType, data map[string]any) (*normalize.Ref, error) {
	if e.closed {
		return nil, ErrEditorClosed
	}
	if data == nil {
		return nil, &schema.ShapeMismatchError{Expected: "entity " + t.Name, Got: "nil"}
	}
	res, err := e.c.normalizer.Normalize(data, schema.Entity(t))
	if err != nil {
		return nil, err
	}
	e.touched.AddAll(e.c.objects.AddObjects(res.Entities))
	return res.Data.(*normalize.Ref), nil
}

// FindObjectRef returns a reference to the stored entity of type t with
// the given plain key.
func (e *Editor) FindObjectRef(t *schema.EntityType, plainKey any) (*normalize.Ref, bool) {
	if e.closed {
		return nil, false
	}
	probe, err := normalize.NewKey(t.Name, plainKey)
	if err != nil {
		return nil, false
	}
	k, ok := e.c.objects.LookupKey(t.Name, probe.Canonical())
	if !ok {
		return nil, false
	}
	if _, ok := e.c.objects.Get(k); !ok {
		return nil, false
	}
	return &normalize.Ref{Type: t, Key: k}, true
}

// ReadObject returns a shallow copy of the record ref points to. Nested
// entities appear as *normalize.Ref values.
func (e *Editor) ReadObject(ref *normalize.Ref) (map[string]any, bool) {
	if e.closed {
		return nil, false
	}
	rec, ok := e.c.objects.Get(ref.Key)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(rec))
	for f, v := range rec {
		out[f] = v
	}
	return out, true
}

// UpdateObject overlays partial onto the record ref points to. Shaped
// fields are normalized; key fields cannot change.
func (e *Editor) UpdateObject(ref *normalize.Ref, partial map[string]any) error {
	if e.closed {
		return ErrEditorClosed
	}
	if _, ok := e.c.objects.Get(ref.Key); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
	}

	fields := make(map[string]any, len(partial))
	for f, v := range partial {
		if ref.Type.IsKeyField(f) {
			continue
		}
		fields[f] = v
	}
	rec, ents, err := e.c.normalizer.NormalizeRecord(ref.Type, fields)
	if err != nil {
		return err
	}
	e.touched.AddAll(e.c.objects.AddObjects(ents))
	e.c.objects.Set(ref.Type, ref.Key, rec)
	e.touched.Add(ref.Key)
	return nil
}

// DeleteObject removes the record ref points to. Queries that referenced
// it see nil in its place, and arrays drop it.
func (e *Editor) DeleteObject(ref *normalize.Ref) bool {
	if e.closed {
		return false
	}
	if !e.c.objects.Delete(ref.Key) {
		return false
	}
	e.touched.Add(ref.Key)
	return true
}
