package cache

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/graphcache/normalize"
)

func TestTracker_Affected(t *testing.T) {
	keys := normalize.NewKeys()
	u1, _ := keys.Resolve("User", 1)
	u2, _ := keys.Resolve("User", 2)
	u3, _ := keys.Resolve("User", 3)

	tr := NewTracker()
	tr.Track("b", normalize.NewKeySet(u1, u2))
	tr.Track("a", normalize.NewKeySet(u2))
	tr.Track("c", normalize.NewKeySet(u3))

	tests := []struct {
		name    string
		touched normalize.KeySet
		written []CacheKey
		want    []CacheKey
	}{
		{"single dependent", normalize.NewKeySet(u1), nil, []CacheKey{"b"}},
		{"shared dependency sorted", normalize.NewKeySet(u2), nil, []CacheKey{"a", "b"}},
		{"written first", normalize.NewKeySet(u2), []CacheKey{"c"}, []CacheKey{"c", "a", "b"}},
		{"written inactive ignored", nil, []CacheKey{"zz"}, nil},
		{"no overlap", normalize.NewKeySet(), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Affected(tt.touched, tt.written...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Affected mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTracker_TrackReplacesDeps(t *testing.T) {
	keys := normalize.NewKeys()
	u1, _ := keys.Resolve("User", 1)
	u2, _ := keys.Resolve("User", 2)

	tr := NewTracker()
	tr.Track("q", normalize.NewKeySet(u1))
	tr.Track("q", normalize.NewKeySet(u2))

	if got := tr.Affected(normalize.NewKeySet(u1)); len(got) != 0 {
		t.Errorf("stale dependency still indexed: %v", got)
	}
	if got := tr.Affected(normalize.NewKeySet(u2)); len(got) != 1 {
		t.Errorf("new dependency not indexed: %v", got)
	}
}

func TestTracker_UntrackAndClear(t *testing.T) {
	keys := normalize.NewKeys()
	u1, _ := keys.Resolve("User", 1)

	tr := NewTracker()
	tr.Track("a", normalize.NewKeySet(u1))
	tr.Track("b", normalize.NewKeySet(u1))

	tr.Untrack("a")
	if tr.IsActive("a") {
		t.Error("a should be inactive after Untrack")
	}
	if diff := cmp.Diff([]CacheKey{"b"}, tr.Affected(normalize.NewKeySet(u1))); diff != "" {
		t.Errorf("Affected mismatch (-want +got):\n%s", diff)
	}

	tr.ClearDeps()
	if !tr.IsActive("b") {
		t.Error("ClearDeps must keep keys active")
	}
	if got := tr.Affected(normalize.NewKeySet(u1)); len(got) != 0 {
		t.Errorf("ClearDeps left dependencies: %v", got)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}
