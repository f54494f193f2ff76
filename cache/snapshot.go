package cache

import (
	"fmt"
	"sort"

	"github.com/jonwraymond/graphcache/normalize"
	"github.com/jonwraymond/graphcache/schema"
	"github.com/jonwraymond/graphcache/selector"
)

// Reference tokens replace entity references in a snapshot.
const (
	TypeToken = "__type__"
	KeyToken  = "__key__"
)

// Snapshot is a serializable copy of a Container's objects and query slots.
type Snapshot struct {
	Objects []ObjectGroup `json:"objects"`
	Queries []QueryEntry  `json:"queries"`
}

// ObjectGroup holds every stored record of one entity type.
type ObjectGroup struct {
	Type    string           `json:"type"`
	Objects []map[string]any `json:"objects"`
}

// QueryEntry is one query slot. Selector is nil for opaque slots.
type QueryEntry struct {
	CacheKey CacheKey `json:"cacheKey"`
	Selector []any    `json:"selector,omitempty"`
	Data     any      `json:"data"`
}

// TypeResolver maps a type name found in a snapshot to a registered type.
type TypeResolver func(name string) (*schema.EntityType, error)

// Export copies the Container's records and slots into a Snapshot. Values
// are shared with the store, so the Snapshot must be encoded or discarded
// before the next write.
func (c *Container) Export() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Snapshot{}
	groups := make(map[string]*ObjectGroup)
	c.objects.Each(func(t *schema.EntityType, _ *normalize.Key, rec map[string]any) {
		g, ok := groups[t.Name]
		if !ok {
			g = &ObjectGroup{Type: t.Name}
			groups[t.Name] = g
		}
		g.Objects = append(g.Objects, exportValue(rec).(map[string]any))
	})
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.Objects = append(s.Objects, *groups[name])
	}

	for _, key := range c.queries.Keys() {
		it, _ := c.queries.Get(key)
		entry := QueryEntry{CacheKey: key, Data: exportValue(it.Data)}
		if it.Selector != nil {
			entry.Selector = it.Selector.Plain()
		}
		s.Queries = append(s.Queries, entry)
	}
	return s
}

func exportValue(v any) any {
	switch x := v.(type) {
	case *normalize.Ref:
		return map[string]any{TypeToken: x.Type.Name, KeyToken: x.Key.Value()}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = exportValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for f, item := range x {
			out[f] = exportValue(item)
		}
		return out
	default:
		return v
	}
}

// Import merges a Snapshot into the Container. Records overlay existing
// ones and keys are interned exactly as normalization interns them, so a
// restored reference is the same *normalize.Key a later fetch produces.
// Restored slots have no descriptor until a subscriber attaches. If resolve
// is nil, the Container's registry is used.
//
// The whole snapshot is decoded before the first write: a failed Import
// leaves every record and slot as it was.
func (c *Container) Import(s *Snapshot, resolve TypeResolver) error {
	if s == nil {
		return nil
	}
	if resolve == nil {
		resolve = c.registry.Lookup
	}

	c.mu.Lock()
	defer c.unlockAndFlush()

	imp := &importer{c: c, resolve: resolve, types: make(map[string]*schema.EntityType)}
	records, err := imp.records(s.Objects)
	if err != nil {
		return err
	}
	slots, err := imp.slots(s.Queries)
	if err != nil {
		return err
	}

	touched := make(normalize.KeySet, len(records))
	for _, r := range records {
		c.objects.Set(r.t, r.k, r.rec)
		touched.Add(r.k)
	}
	written := make([]CacheKey, 0, len(slots))
	for _, sl := range slots {
		if prev, ok := c.queries.Get(sl.key); ok {
			sl.it.Query = prev.Query
		}
		c.queries.Set(sl.key, sl.it)
		c.touchInactive(sl.key)
		written = append(written, sl.key)
	}

	c.notifyLocked(touched, written...)
	return nil
}

type stagedRecord struct {
	t   *schema.EntityType
	k   *normalize.Key
	rec map[string]any
}

type stagedSlot struct {
	key CacheKey
	it  *Item
}

type importer struct {
	c       *Container
	resolve TypeResolver
	types   map[string]*schema.EntityType
}

func (imp *importer) records(groups []ObjectGroup) ([]stagedRecord, error) {
	var out []stagedRecord
	for _, g := range groups {
		t, err := imp.typeOf(g.Type)
		if err != nil {
			return nil, err
		}
		for _, raw := range g.Objects {
			plain, err := t.ExtractKey(raw)
			if err != nil {
				return nil, fmt.Errorf("cache: restore %s: %w", t.Name, err)
			}
			k, err := imp.c.objects.InternKey(t, plain)
			if err != nil {
				return nil, fmt.Errorf("cache: restore %s: %w", t.Name, err)
			}
			rec, err := imp.value(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, stagedRecord{t: t, k: k, rec: rec.(map[string]any)})
		}
	}
	return out, nil
}

func (imp *importer) slots(entries []QueryEntry) ([]stagedSlot, error) {
	out := make([]stagedSlot, 0, len(entries))
	for _, entry := range entries {
		data, err := imp.value(entry.Data)
		if err != nil {
			return nil, err
		}
		it := &Item{Data: data}
		if entry.Selector != nil {
			sel, err := selector.FromPlain(entry.Selector)
			if err != nil {
				return nil, fmt.Errorf("cache: restore %s: %w", entry.CacheKey, err)
			}
			it.Selector = sel
		}
		out = append(out, stagedSlot{key: entry.CacheKey, it: it})
	}
	return out, nil
}

func (imp *importer) typeOf(name string) (*schema.EntityType, error) {
	if t, ok := imp.types[name]; ok {
		return t, nil
	}
	t, err := imp.resolve(name)
	if err != nil {
		return nil, err
	}
	imp.types[name] = t
	return t, nil
}

func (imp *importer) value(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			nv, err := imp.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case map[string]any:
		if ref, ok, err := imp.ref(x); ok || err != nil {
			return ref, err
		}
		out := make(map[string]any, len(x))
		for f, item := range x {
			nv, err := imp.value(item)
			if err != nil {
				return nil, err
			}
			out[f] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

// ref decodes a reference token. ok is false when m is a plain record.
func (imp *importer) ref(m map[string]any) (any, bool, error) {
	if len(m) != 2 {
		return nil, false, nil
	}
	name, ok := m[TypeToken].(string)
	if !ok {
		return nil, false, nil
	}
	plain, ok := m[KeyToken]
	if !ok {
		return nil, false, nil
	}
	t, err := imp.typeOf(name)
	if err != nil {
		return nil, true, err
	}
	k, err := imp.c.objects.InternKey(t, plain)
	if err != nil {
		return nil, true, fmt.Errorf("cache: restore reference to %s: %w", name, err)
	}
	return &normalize.Ref{Type: t, Key: k}, true, nil
}
