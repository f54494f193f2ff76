package normalize

import "github.com/jonwraymond/graphcache/schema"

// Entity is one normalized entity record found in a payload.
type Entity struct {
	Type   *schema.EntityType
	Key    *Key
	Record map[string]any
}

// Entities collects the entities seen during one normalization, grouped by
// identity and kept in first-seen order.
type Entities struct {
	order []*Key
	byKey map[*Key]*Entity
}

// NewEntities returns an empty collection.
func NewEntities() *Entities {
	return &Entities{byKey: make(map[*Key]*Entity)}
}

// Add overlays record onto the entity stored under k: fields in record
// replace earlier values, fields absent from record are kept.
func (e *Entities) Add(t *schema.EntityType, k *Key, record map[string]any) {
	if existing, ok := e.byKey[k]; ok {
		for f, v := range record {
			existing.Record[f] = v
		}
		return
	}
	copied := make(map[string]any, len(record))
	for f, v := range record {
		copied[f] = v
	}
	e.order = append(e.order, k)
	e.byKey[k] = &Entity{Type: t, Key: k, Record: copied}
}

// Merge overlays every entity of other onto e.
func (e *Entities) Merge(other *Entities) {
	if other == nil {
		return
	}
	for _, k := range other.order {
		ent := other.byKey[k]
		e.Add(ent.Type, ent.Key, ent.Record)
	}
}

// Get returns the entity stored under k.
func (e *Entities) Get(k *Key) (*Entity, bool) {
	ent, ok := e.byKey[k]
	return ent, ok
}

// List returns the entities in first-seen order.
func (e *Entities) List() []*Entity {
	out := make([]*Entity, len(e.order))
	for i, k := range e.order {
		out[i] = e.byKey[k]
	}
	return out
}

// Keys returns the identity keys of every collected entity.
func (e *Entities) Keys() KeySet {
	s := make(KeySet, len(e.order))
	for _, k := range e.order {
		s.Add(k)
	}
	return s
}

// Len returns the number of distinct entities.
func (e *Entities) Len() int { return len(e.order) }
