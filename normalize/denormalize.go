package normalize

import (
	"github.com/jonwraymond/graphcache/schema"
	"github.com/jonwraymond/graphcache/selector"
)

// ObjectReader looks up stored entity records by key.
type ObjectReader interface {
	Get(k *Key) (map[string]any, bool)
}

// Denormalize rebuilds a plain view of data. Only fields present in sel are
// emitted. References resolve through objects; a missing entity becomes
// nil, and nil elements are dropped from arrays. The returned KeySet holds
// every key the view depended on, including keys whose entity was missing.
//
// Returned views share leaf values with the store and must be treated as
// read-only.
func Denormalize(data any, sel *selector.Selector, tr schema.Transforms, objects ObjectReader) (any, KeySet) {
	d := &denormalizer{objects: objects, touched: make(KeySet)}
	return d.walk(data, sel, tr), d.touched
}

type denormalizer struct {
	objects ObjectReader
	touched KeySet
}

func (d *denormalizer) walk(data any, sel *selector.Selector, tr schema.Transforms) any {
	switch v := data.(type) {
	case nil:
		return nil

	case *Ref:
		d.touched.Add(v.Key)
		rec, ok := d.objects.Get(v.Key)
		if !ok {
			return nil
		}
		return d.record(rec, sel, schema.Overlay(v.Type.Transforms, tr))

	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			res := d.walk(item, sel, tr)
			if res == nil {
				continue
			}
			out = append(out, res)
		}
		return out

	case map[string]any:
		if sel == nil {
			return v
		}
		return d.record(v, sel, tr)

	default:
		return v
	}
}

func (d *denormalizer) record(rec map[string]any, sel *selector.Selector, tr schema.Transforms) map[string]any {
	if sel == nil {
		return rec
	}
	out := make(map[string]any, sel.Len())
	for _, f := range sel.Fields() {
		v, ok := rec[f]
		if !ok {
			continue
		}
		t := tr[f]
		if child := sel.Child(f); child != nil {
			v = d.walk(v, child, t.Fields)
		}
		if t.Fn != nil {
			nv, keep := t.Fn(v)
			if !keep {
				continue
			}
			v = nv
		}
		out[f] = v
	}
	return out
}
