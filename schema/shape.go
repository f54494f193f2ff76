package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the variants of a Shape.
type Kind int

const (
	// KindEntity normalizes the value into an entity reference.
	KindEntity Kind = iota
	// KindPlaceholder names an entity type resolved lazily through a Registry.
	KindPlaceholder
	// KindRecord describes a plain nested record with per-field shapes.
	KindRecord
	// KindArray describes an array whose elements share one shape.
	KindArray
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindPlaceholder:
		return "placeholder"
	case KindRecord:
		return "record"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Shape describes how a value is normalized. It is a closed sum over
// Entity, Placeholder, Record and Array; construct it only with the
// functions in this file. Shapes are immutable once built.
type Shape struct {
	kind   Kind
	entity *EntityType
	name   string
	fields map[string]*Shape
	elems  []*Shape
}

// Entity returns a shape that normalizes a value as an instance of t.
func Entity(t *EntityType) *Shape {
	return &Shape{kind: KindEntity, entity: t}
}

// Ref returns a placeholder for the entity type registered under name.
// It allows forward and mutually recursive references.
func Ref(name string) *Shape {
	return &Shape{kind: KindPlaceholder, name: name}
}

// Record returns a shape for a plain record. Fields not listed are copied
// verbatim during normalization.
func Record(fields map[string]*Shape) *Shape {
	return &Shape{kind: KindRecord, fields: fields}
}

// Array returns a shape for an array. Exactly one element shape is valid;
// any other count is reported as a ShapeMismatchError when normalizing.
func Array(elems ...*Shape) *Shape {
	return &Shape{kind: KindArray, elems: elems}
}

// Kind reports the variant.
func (s *Shape) Kind() Kind { return s.kind }

// EntityType returns the type of an Entity shape, or nil.
func (s *Shape) EntityType() *EntityType { return s.entity }

// Name returns the referenced type name of a Placeholder shape.
func (s *Shape) Name() string { return s.name }

// Field returns the shape declared for a Record field.
func (s *Shape) Field(name string) (*Shape, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Elem returns the single element shape of an Array.
func (s *Shape) Elem() (*Shape, error) {
	if len(s.elems) != 1 {
		return nil, &ShapeMismatchError{
			Expected: "array shape with exactly one element type",
			Got:      fmt.Sprintf("%d element types", len(s.elems)),
		}
	}
	return s.elems[0], nil
}

// String renders the shape for diagnostics.
func (s *Shape) String() string {
	if s == nil {
		return "<nil>"
	}
	switch s.kind {
	case KindEntity:
		return s.entity.Name
	case KindPlaceholder:
		return "ref(" + s.name + ")"
	case KindRecord:
		names := make([]string, 0, len(s.fields))
		for k := range s.fields {
			names = append(names, k)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, k := range names {
			parts[i] = k + ": " + s.fields[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindArray:
		parts := make([]string, len(s.elems))
		for i, e := range s.elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "unknown"
	}
}
