package cache

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/graphcache/schema"
)

type fixture struct {
	reg  *schema.Registry
	user *schema.EntityType
	post *schema.EntityType
	c    *Container
}

func newFixture(t testing.TB, policy Policy) *fixture {
	t.Helper()
	reg := schema.NewRegistry()
	user := reg.MustDefine("User", []string{"id"}, nil)
	post := reg.MustDefine("Post", []string{"id"}, map[string]*schema.Shape{
		"author": schema.Entity(user),
	})
	c, err := New(reg, Options{Policy: policy})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{reg: reg, user: user, post: post, c: c}
}

func (f *fixture) usersQuery(ids ...int) *Query {
	return &Query{
		Name:  "users",
		Args:  map[string]any{"ids": ids},
		Shape: schema.Array(schema.Entity(f.user)),
	}
}

func (f *fixture) save(t *testing.T, q *Query, data any) any {
	t.Helper()
	_, view, err := f.c.SaveQueryData(q, data)
	if err != nil {
		t.Fatalf("SaveQueryData(%s) failed: %v", q.Name, err)
	}
	return view
}

func user(id int, name string) map[string]any {
	return map[string]any{"id": id, "name": name}
}

// recorder collects views delivered to a listener.
type recorder struct {
	views []any
}

func (r *recorder) listen(v any) { r.views = append(r.views, v) }

func (r *recorder) last() any {
	if len(r.views) == 0 {
		return nil
	}
	return r.views[len(r.views)-1]
}

func TestContainer_SaveAndRead(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1, 2)
	data := []any{user(1, "a"), user(2, "b")}

	view := f.save(t, q, data)
	if diff := cmp.Diff(data, view); diff != "" {
		t.Errorf("saved view mismatch (-want +got):\n%s", diff)
	}

	// Equal args from a different instance find the same slot.
	got, ok := f.c.Read(f.usersQuery(1, 2))
	if !ok {
		t.Fatal("Read missed a cached query")
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
	if _, ok := f.c.Read(f.usersQuery(2, 1)); ok {
		t.Error("different args must not share a slot")
	}
}

func TestContainer_OpaqueQuery(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := &Query{Name: "settings"}
	data := map[string]any{"theme": "dark", "nested": []any{map[string]any{"id": 1}}}

	f.save(t, q, data)
	got, _ := f.c.Read(q)
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("opaque view mismatch (-want +got):\n%s", diff)
	}
	if f.c.Stats().Objects != 0 {
		t.Error("opaque queries must not create objects")
	}
}

func TestContainer_SharedEntityUpdatesEveryQuery(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	feed := &Query{Name: "feed", Shape: schema.Array(schema.Entity(f.post))}
	f.save(t, feed, []any{
		map[string]any{"id": 1, "title": "hello", "author": user(7, "ann")},
	})

	f.save(t, &Query{Name: "user", Args: 7, Shape: schema.Entity(f.user)}, user(7, "Ann B"))

	got, _ := f.c.Read(feed)
	want := []any{
		map[string]any{"id": 1, "title": "hello", "author": user(7, "Ann B")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed did not reflect the shared update (-want +got):\n%s", diff)
	}
}

func TestContainer_NotifiesOnlyAffectedQueries(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q1 := f.usersQuery(1, 2)
	q2 := f.usersQuery(3)
	f.save(t, q1, []any{user(1, "a"), user(2, "b")})
	f.save(t, q2, []any{user(3, "c")})

	var r1, r2 recorder
	if _, err := f.c.Watch(q1, r1.listen); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if _, err := f.c.Watch(q2, r2.listen); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	_, err := f.c.SaveMutationResult(&Mutation{Name: "rename", Shape: schema.Entity(f.user)}, user(2, "B"))
	if err != nil {
		t.Fatalf("SaveMutationResult failed: %v", err)
	}

	if len(r1.views) != 1 {
		t.Fatalf("q1 notified %d times, want 1", len(r1.views))
	}
	if len(r2.views) != 0 {
		t.Errorf("q2 must not be notified, got %d", len(r2.views))
	}
	want := []any{user(1, "a"), user(2, "B")}
	if diff := cmp.Diff(want, r1.last()); diff != "" {
		t.Errorf("delivered view mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_NewDependenciesAreTracked(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1)
	var r recorder
	if _, err := f.c.Watch(q, r.listen); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// First data arrives after the subscription.
	f.save(t, q, []any{user(1, "a")})
	if len(r.views) != 1 {
		t.Fatalf("expected delivery of first data, got %d", len(r.views))
	}

	_, err := f.c.SaveMutationResult(&Mutation{Name: "rename", Shape: schema.Entity(f.user)}, user(1, "A"))
	if err != nil {
		t.Fatalf("SaveMutationResult failed: %v", err)
	}
	if diff := cmp.Diff([]any{user(1, "A")}, r.last()); diff != "" {
		t.Errorf("update missed (-want +got):\n%s", diff)
	}
}

func TestContainer_ListenerMayWrite(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q1 := f.usersQuery(1)
	q2 := f.usersQuery(3)
	f.save(t, q1, []any{user(1, "a")})
	f.save(t, q2, []any{user(3, "c")})

	var events []string
	if _, err := f.c.Watch(q2, func(any) { events = append(events, "q2") }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if _, err := f.c.Watch(q1, func(any) {
		events = append(events, "q1-start")
		if len(events) == 1 {
			if _, _, err := f.c.SaveQueryData(q2, []any{user(3, "C")}); err != nil {
				t.Errorf("nested SaveQueryData failed: %v", err)
			}
		}
		events = append(events, "q1-end")
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if _, err := f.c.SaveMutationResult(&Mutation{Name: "m", Shape: schema.Entity(f.user)}, user(1, "A")); err != nil {
		t.Fatalf("SaveMutationResult failed: %v", err)
	}

	want := []string{"q1-start", "q1-end", "q2"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_SubscribeQueuesCachedView(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1)
	f.save(t, q, []any{user(1, "a")})

	var r recorder
	w, err := f.c.Subscribe(q, r.listen)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !w.Cached {
		t.Fatal("Subscribe must report the cached slot")
	}
	f.save(t, q, []any{user(1, "b")})

	want := []any{[]any{user(1, "a")}, []any{user(1, "b")}}
	if diff := cmp.Diff(want, r.views); diff != "" {
		t.Errorf("deliveries (-want +got):\n%s", diff)
	}
}

func TestContainer_SubscribeEmptySlot(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	var r recorder
	w, err := f.c.Subscribe(f.usersQuery(1), r.listen)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if w.Cached || len(r.views) != 0 {
		t.Errorf("empty slot: cached=%v deliveries=%d", w.Cached, len(r.views))
	}
}

func TestContainer_CancelStopsDelivery(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1)
	f.save(t, q, []any{user(1, "a")})

	var r recorder
	w, err := f.c.Watch(q, r.listen)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if !w.Cached {
		t.Error("Watch should report the cached slot")
	}
	if diff := cmp.Diff([]any{user(1, "a")}, w.View); diff != "" {
		t.Errorf("initial view mismatch (-want +got):\n%s", diff)
	}

	w.Cancel()
	w.Cancel()
	f.save(t, q, []any{user(1, "b")})

	if len(r.views) != 0 {
		t.Errorf("cancelled watch received %d views", len(r.views))
	}
	if f.c.IsActive(w.Key) {
		t.Error("slot should be inactive after its last watch is cancelled")
	}
	if _, ok := f.c.Read(q); !ok {
		t.Error("cancel must leave data in place")
	}
}

func TestContainer_SaveMoreQueryData(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery()
	q.Merge = func(existing, incoming any) any {
		return append(existing.([]any), incoming.([]any)...)
	}

	f.save(t, q, []any{user(1, "a")})
	_, view, err := f.c.SaveMoreQueryData(q, []any{map[string]any{"id": 2, "name": "b", "age": 3}})
	if err != nil {
		t.Fatalf("SaveMoreQueryData failed: %v", err)
	}

	// The widened selector applies to every element.
	want := []any{user(1, "a"), map[string]any{"id": 2, "name": "b", "age": 3}}
	if diff := cmp.Diff(want, view); diff != "" {
		t.Errorf("merged view mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_SaveMoreRunsRelatedUpdates(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	seen := &Query{
		Name:    "seen",
		Local:   true,
		Default: map[string]any{"users": 0},
		Updates: map[string]UpdateFunc{
			"users": func(_ any, info UpdateInfo) any {
				return map[string]any{"users": len(info.Result.([]any))}
			},
		},
	}
	if err := f.c.UpdateQuery(seen, func(cur any) any { return cur }); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	q := f.usersQuery()
	q.Merge = func(existing, incoming any) any {
		return append(existing.([]any), incoming.([]any)...)
	}

	f.save(t, q, []any{user(1, "a")})
	if _, _, err := f.c.SaveMoreQueryData(q, []any{user(2, "b")}); err != nil {
		t.Fatalf("SaveMoreQueryData failed: %v", err)
	}

	got, _ := f.c.Read(seen)
	if diff := cmp.Diff(map[string]any{"users": 2}, got); diff != "" {
		t.Errorf("related update after a further page (-want +got):\n%s", diff)
	}
}

func TestContainer_SaveMoreWithoutMergeReplaces(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := &Query{Name: "log"}
	f.save(t, q, []any{"a"})
	_, view, err := f.c.SaveMoreQueryData(q, []any{"b"})
	if err != nil {
		t.Fatalf("SaveMoreQueryData failed: %v", err)
	}
	if diff := cmp.Diff([]any{"b"}, view); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_ApplyMutationRunsDeclarativeUpdates(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1, 2)
	q.Updates = map[string]UpdateFunc{
		"addUser": func(current any, info UpdateInfo) any {
			return append(current.([]any), info.Result)
		},
	}
	f.save(t, q, []any{user(1, "a"), user(2, "b")})

	var r recorder
	if _, err := f.c.Watch(q, r.listen); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	m := &Mutation{Name: "addUser", Args: map[string]any{"name": "c"}, Shape: schema.Entity(f.user)}
	view, err := f.c.ApplyMutation(m, user(3, "c"), false)
	if err != nil {
		t.Fatalf("ApplyMutation failed: %v", err)
	}
	if diff := cmp.Diff(user(3, "c"), view); diff != "" {
		t.Errorf("mutation view mismatch (-want +got):\n%s", diff)
	}

	want := []any{user(1, "a"), user(2, "b"), user(3, "c")}
	got, _ := f.c.Read(q)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("updated query mismatch (-want +got):\n%s", diff)
	}
	if len(r.views) != 1 {
		t.Errorf("subscriber notified %d times, want 1", len(r.views))
	}
}

func TestContainer_ApplyMutationOptimisticFlag(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	var seen []bool
	q := &Query{Name: "flags", Local: true, Default: []any{}, Updates: map[string]UpdateFunc{
		"toggle": func(current any, info UpdateInfo) any {
			seen = append(seen, info.Optimistic)
			return current
		},
	}}
	if err := f.c.UpdateQuery(q, func(cur any) any { return cur }); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	m := &Mutation{Name: "toggle"}
	if _, err := f.c.ApplyMutation(m, nil, true); err != nil {
		t.Fatalf("ApplyMutation failed: %v", err)
	}
	if _, err := f.c.ApplyMutation(m, nil, false); err != nil {
		t.Fatalf("ApplyMutation failed: %v", err)
	}
	if diff := cmp.Diff([]bool{true, false}, seen); diff != "" {
		t.Errorf("optimistic flags mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_BeforeHookErrorKeepsWrites(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	errBoom := errors.New("boom")

	flag := &Query{Name: "flag", Local: true, Default: "initial"}
	users := f.usersQuery(1)
	users.Updates = map[string]UpdateFunc{
		"addUser": func(current any, info UpdateInfo) any {
			return append(current.([]any), info.Result)
		},
	}
	f.save(t, users, []any{user(1, "a")})

	m := &Mutation{
		Name:  "addUser",
		Shape: schema.Entity(f.user),
		BeforeQueryUpdates: func(e *Editor, info UpdateInfo) error {
			if err := e.UpdateQuery(flag, func(any) any { return "touched" }); err != nil {
				return err
			}
			return errBoom
		},
	}
	_, err := f.c.ApplyMutation(m, user(2, "b"), false)
	if !errors.Is(err, errBoom) {
		t.Fatalf("ApplyMutation = %v, want %v", err, errBoom)
	}

	got, _ := f.c.Read(flag)
	if got != "touched" {
		t.Errorf("write made before the error was lost: %v", got)
	}
	list, _ := f.c.Read(users)
	if len(list.([]any)) != 1 {
		t.Errorf("declarative updates must not run after a hook error, got %v", list)
	}
}

func TestContainer_RelatedQueryUpdates(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	stats := &Query{
		Name:    "stats",
		Local:   true,
		Default: map[string]any{"pages": 0},
		Updates: map[string]UpdateFunc{
			"users": func(current any, info UpdateInfo) any {
				pages := current.(map[string]any)["pages"].(int)
				return map[string]any{"pages": pages + len(info.Result.([]any))}
			},
		},
	}
	if err := f.c.UpdateQuery(stats, func(cur any) any { return cur }); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	f.save(t, f.usersQuery(1, 2), []any{user(1, "a"), user(2, "b")})

	got, _ := f.c.Read(stats)
	if diff := cmp.Diff(map[string]any{"pages": 2}, got); diff != "" {
		t.Errorf("related update mismatch (-want +got):\n%s", diff)
	}
}

func TestContainer_DeleteQuery(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1)
	f.save(t, q, []any{user(1, "a")})

	var r recorder
	if _, err := f.c.Watch(q, r.listen); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if !f.c.DeleteQuery(q) {
		t.Fatal("DeleteQuery should report the removed slot")
	}
	if f.c.DeleteQuery(q) {
		t.Error("second DeleteQuery should report nothing removed")
	}
	if len(r.views) != 1 || r.last() != nil {
		t.Errorf("subscriber should receive one nil view, got %v", r.views)
	}
}

func TestContainer_RetentionEvictsOldestInactive(t *testing.T) {
	f := newFixture(t, Policy{MaxInactive: 2})

	active := f.usersQuery(0)
	if _, err := f.c.Watch(active, func(any) {}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	f.save(t, active, []any{user(0, "z")})
	for i := 1; i <= 3; i++ {
		f.save(t, f.usersQuery(i), []any{user(i, "u")})
	}

	if _, ok := f.c.Read(f.usersQuery(1)); ok {
		t.Error("oldest inactive slot should be evicted")
	}
	for _, i := range []int{2, 3} {
		if _, ok := f.c.Read(f.usersQuery(i)); !ok {
			t.Errorf("slot %d should be retained", i)
		}
	}
	if _, ok := f.c.Read(active); !ok {
		t.Error("active slots are never evicted")
	}
	if s := f.c.Stats(); s.Inactive != 2 || s.Active != 1 {
		t.Errorf("Stats = %+v, want 2 inactive and 1 active", s)
	}
}

func TestContainer_PruneInactive(t *testing.T) {
	f := newFixture(t, UnboundedPolicy())
	a, b := f.usersQuery(1), f.usersQuery(2)
	f.save(t, a, []any{user(1, "a")})
	f.save(t, b, []any{user(2, "b")})
	if _, err := f.c.Watch(a, func(any) {}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if n := f.c.PruneInactive(); n != 1 {
		t.Errorf("PruneInactive = %d, want 1", n)
	}
	if _, ok := f.c.Read(b); ok {
		t.Error("inactive slot survived PruneInactive")
	}
	if _, ok := f.c.Read(a); !ok {
		t.Error("active slot was pruned")
	}
	if f.c.Stats().Objects != 2 {
		t.Error("PruneInactive must keep entity records")
	}
}

func TestContainer_Reset(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	q := f.usersQuery(1)
	f.save(t, q, []any{user(1, "a")})
	if _, err := f.c.Watch(q, func(any) {}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	f.c.Reset()

	s := f.c.Stats()
	if s.Objects != 0 || s.Queries != 0 || s.Keys != 0 {
		t.Errorf("Reset left state behind: %+v", s)
	}
	if s.Active != 1 {
		t.Errorf("Reset must keep subscriptions, Active = %d", s.Active)
	}
}

func TestNew_NilRegistry(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, schema.ErrSchema) {
		t.Errorf("New(nil) = %v, want ErrSchema", err)
	}
}
