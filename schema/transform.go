package schema

// TransformFunc rewrites a leaf value during denormalization. Returning
// ok == false omits the field from the output.
type TransformFunc func(value any) (out any, ok bool)

// Transform is either a leaf function or a nested map for a sub-record.
type Transform struct {
	Fn     TransformFunc
	Fields Transforms
}

// Transforms maps field names to their transform.
type Transforms map[string]Transform

// Apply wraps fn as a leaf transform.
func Apply(fn TransformFunc) Transform {
	return Transform{Fn: fn}
}

// Nested wraps a transform map for a nested record or array of records.
func Nested(t Transforms) Transform {
	return Transform{Fields: t}
}

// Overlay returns base with every entry of top replacing it. Nested maps
// are overlaid recursively. Neither input is modified.
func Overlay(base, top Transforms) Transforms {
	if len(top) == 0 {
		return base
	}
	if len(base) == 0 {
		return top
	}
	out := make(Transforms, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		if prev, ok := out[k]; ok && v.Fn == nil && prev.Fn == nil {
			out[k] = Transform{Fields: Overlay(prev.Fields, v.Fields)}
			continue
		}
		out[k] = v
	}
	return out
}
