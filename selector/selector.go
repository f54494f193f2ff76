// Package selector records which fields, recursively, a query requested so
// that denormalization reproduces exactly that view.
package selector

import (
	"errors"
	"fmt"
)

// ErrInvalidPlain is returned by FromPlain for malformed input.
var ErrInvalidPlain = errors.New("selector: invalid plain selector")

// Selector is an ordered set of fields. Each field is either a leaf or
// carries a sub-selector for the nested record or array of records.
//
// The zero value is not usable; call New.
type Selector struct {
	order []string
	subs  map[string]*Selector // nil value means leaf
}

// New returns an empty selector.
func New() *Selector {
	return &Selector{subs: make(map[string]*Selector)}
}

// Of builds a selector from leaf names. Handy in tests and for ad-hoc reads.
func Of(fields ...string) *Selector {
	s := New()
	for _, f := range fields {
		s.Add(f)
	}
	return s
}

// Add records field as a leaf. A field that already has a sub-selector
// keeps it.
func (s *Selector) Add(field string) {
	if _, ok := s.subs[field]; ok {
		return
	}
	s.order = append(s.order, field)
	s.subs[field] = nil
}

// Set records field with sub as its sub-selector, merging with any
// sub-selector already present.
func (s *Selector) Set(field string, sub *Selector) {
	if sub == nil {
		s.Add(field)
		return
	}
	prev, ok := s.subs[field]
	if !ok {
		s.order = append(s.order, field)
	}
	if prev == nil {
		s.subs[field] = sub
		return
	}
	s.subs[field] = prev.Merge(sub)
}

// Has reports whether field is selected.
func (s *Selector) Has(field string) bool {
	if s == nil {
		return false
	}
	_, ok := s.subs[field]
	return ok
}

// Child returns the sub-selector of field; nil for leaves and absent fields.
func (s *Selector) Child(field string) *Selector {
	if s == nil {
		return nil
	}
	return s.subs[field]
}

// Fields returns the selected field names in first-seen order.
func (s *Selector) Fields() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of selected fields.
func (s *Selector) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Merge returns the recursive union of s and other. Neither input is
// modified. A sub-selector wins over a leaf for the same field.
func (s *Selector) Merge(other *Selector) *Selector {
	if s == nil {
		return other.Clone()
	}
	out := s.Clone()
	if other == nil {
		return out
	}
	for _, f := range other.order {
		sub := other.subs[f]
		if sub == nil {
			out.Add(f)
			continue
		}
		out.Set(f, sub.Clone())
	}
	return out
}

// Clone returns a deep copy.
func (s *Selector) Clone() *Selector {
	if s == nil {
		return nil
	}
	out := &Selector{
		order: append([]string(nil), s.order...),
		subs:  make(map[string]*Selector, len(s.subs)),
	}
	for f, sub := range s.subs {
		out.subs[f] = sub.Clone()
	}
	return out
}

// Equal reports structural equality, ignoring field order.
func (s *Selector) Equal(other *Selector) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if len(s.subs) != len(other.subs) {
		return false
	}
	for f, sub := range s.subs {
		osub, ok := other.subs[f]
		if !ok {
			return false
		}
		if (sub == nil) != (osub == nil) {
			return false
		}
		if sub != nil && !sub.Equal(osub) {
			return false
		}
	}
	return true
}

// Plain converts s into a JSON-friendly tree: a []any whose items are
// field names (leaves) or single-entry map[string]any{field: subtree}.
func (s *Selector) Plain() []any {
	if s == nil {
		return nil
	}
	out := make([]any, 0, len(s.order))
	for _, f := range s.order {
		sub := s.subs[f]
		if sub == nil {
			out = append(out, f)
			continue
		}
		out = append(out, map[string]any{f: sub.Plain()})
	}
	return out
}

// FromPlain is the inverse of Plain. A nil input yields a nil selector.
func FromPlain(v any) (*Selector, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", ErrInvalidPlain, v)
	}
	s := New()
	for _, item := range items {
		switch it := item.(type) {
		case string:
			s.Add(it)
		case map[string]any:
			if len(it) != 1 {
				return nil, fmt.Errorf("%w: nested entry must have one field, got %d", ErrInvalidPlain, len(it))
			}
			for f, subtree := range it {
				sub, err := FromPlain(subtree)
				if err != nil {
					return nil, err
				}
				if sub == nil {
					sub = New()
				}
				s.Set(f, sub)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected item %T", ErrInvalidPlain, item)
		}
	}
	return s, nil
}
