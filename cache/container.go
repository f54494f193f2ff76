package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jonwraymond/graphcache/normalize"
	"github.com/jonwraymond/graphcache/schema"
)

// Listener receives the fresh view of a watched query. A nil view means the
// slot no longer holds data.
type Listener func(view any)

// Options configures a Container.
type Options struct {
	// Keyer derives cache keys. If nil, DefaultKeyer is used.
	Keyer Keyer

	// Policy bounds retention of inactive query slots.
	Policy Policy

	// OnNotify is called after each delivered notification.
	OnNotify func(key CacheKey)
}

// Container is the normalized store. Every method is atomic with respect to
// the others. Listener callbacks run after the lock is released, in the
// order the writes happened, and may call back into the Container.
type Container struct {
	mu sync.Mutex

	registry   *schema.Registry
	objects    *Objects
	queries    *Queries
	tracker    *Tracker
	normalizer *normalize.Normalizer
	inactive   *lru.Cache[CacheKey, struct{}]
	onNotify   func(CacheKey)

	watchers map[CacheKey][]*watcher

	outbox   []func()
	draining bool
}

type watcher struct {
	q      *Query
	fn     Listener
	closed atomic.Bool
}

// Stats is a point-in-time summary of the Container.
type Stats struct {
	Objects  int
	Queries  int
	Active   int
	Inactive int
	Keys     int
}

// New creates a Container over registry.
func New(registry *schema.Registry, opts Options) (*Container, error) {
	if registry == nil {
		return nil, &schema.SchemaError{Reason: "registry is nil"}
	}
	c := &Container{
		registry: registry,
		objects:  NewObjects(),
		queries:  NewQueries(opts.Keyer),
		tracker:  NewTracker(),
		onNotify: opts.OnNotify,
		watchers: make(map[CacheKey][]*watcher),
	}
	c.normalizer = normalize.NewNormalizer(registry, c.objects)

	if opts.Policy.Bounded() {
		inactive, err := lru.NewWithEvict[CacheKey, struct{}](opts.Policy.MaxInactive, c.evict)
		if err != nil {
			return nil, fmt.Errorf("cache: create retention list: %w", err)
		}
		c.inactive = inactive
	}
	return c, nil
}

// Registry returns the schema registry the Container normalizes against.
func (c *Container) Registry() *schema.Registry { return c.registry }

// CacheKey derives the slot key of q.
func (c *Container) CacheKey(q *Query) (CacheKey, error) {
	return c.queries.CacheKey(q)
}

// evict runs under c.mu, from inside lru calls.
func (c *Container) evict(key CacheKey, _ struct{}) {
	if c.tracker.IsActive(key) {
		return
	}
	c.queries.Delete(key)
}

// SaveQueryData normalizes data against q's shape (or stores it opaquely),
// writes the slot, applies related-query updates and notifies every
// affected subscriber. It returns the slot key and the stored view.
func (c *Container) SaveQueryData(q *Query, data any) (CacheKey, any, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	key, err := c.queries.CacheKey(q)
	if err != nil {
		return "", nil, err
	}
	touched, err := c.writeLocked(key, q, data)
	if err != nil {
		return key, nil, err
	}
	it, _ := c.queries.Get(key)
	view, _ := c.viewLocked(it, q)
	return c.relatedLocked(q, key, view, touched)
}

// SaveMoreQueryData folds a further page into q's slot with q.Merge. The
// merge sees the stored result and the normalized page, in which entities
// are *normalize.Ref values. Without a Merge the page replaces the slot.
// Related-query updates then run with the merged view.
func (c *Container) SaveMoreQueryData(q *Query, data any) (CacheKey, any, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	key, err := c.queries.CacheKey(q)
	if err != nil {
		return "", nil, err
	}
	it, ok := c.queries.Get(key)
	if !ok {
		touched, err := c.writeLocked(key, q, data)
		if err != nil {
			return key, nil, err
		}
		it, _ = c.queries.Get(key)
		view, _ := c.viewLocked(it, q)
		return c.relatedLocked(q, key, view, touched)
	}

	merge := q.Merge
	if merge == nil {
		merge = func(_, incoming any) any { return incoming }
	}

	touched := make(normalize.KeySet)
	next := &Item{Query: it.Query, Selector: it.Selector}
	if next.Query == nil {
		next.Query = q
	}
	if q.Shape == nil {
		next.Data = merge(it.Data, data)
	} else {
		res, err := c.normalizer.Normalize(data, q.Shape)
		if err != nil {
			return key, nil, err
		}
		touched.AddAll(c.objects.AddObjects(res.Entities))
		next.Data = merge(it.Data, res.Data)
		next.Selector = it.Selector.Merge(res.Selector)
	}
	c.queries.Set(key, next)
	c.touchInactive(key)

	view, _ := c.viewLocked(next, q)
	return c.relatedLocked(q, key, view, touched)
}

// relatedLocked runs the related-query updates keyed by q's name with the
// slot's new view and notifies every affected subscriber.
func (c *Container) relatedLocked(q *Query, key CacheKey, view any, touched normalize.KeySet) (CacheKey, any, error) {
	info := UpdateInfo{Name: q.Name, Result: view, Args: q.Args}
	written, err := c.applyUpdatesLocked(info, key, touched)
	c.notifyLocked(touched, append([]CacheKey{key}, written...)...)
	return key, view, err
}

// SaveMutationResult normalizes a mutation result into the object store.
// No query slot is written. It returns the result view.
func (c *Container) SaveMutationResult(m *Mutation, data any) (any, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	view, touched, err := c.saveMutationLocked(m, data)
	if err != nil {
		return nil, err
	}
	c.notifyLocked(touched)
	return view, nil
}

func (c *Container) saveMutationLocked(m *Mutation, data any) (any, normalize.KeySet, error) {
	touched := make(normalize.KeySet)
	if m.Shape == nil {
		return data, touched, nil
	}
	res, err := c.normalizer.Normalize(data, m.Shape)
	if err != nil {
		return nil, nil, err
	}
	touched.AddAll(c.objects.AddObjects(res.Entities))
	view, _ := normalize.Denormalize(res.Data, res.Selector, m.Transforms, c.objects)
	return view, touched, nil
}

// ApplyMutation is the atomic cache step of a mutation: it saves result,
// runs m.BeforeQueryUpdates with an Editor, then runs every cached query's
// update function keyed by m.Name. Subscribers are notified of everything
// written, including writes made before a failing hook.
func (c *Container) ApplyMutation(m *Mutation, result any, optimistic bool) (any, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	view, touched, err := c.saveMutationLocked(m, result)
	if err != nil {
		return nil, err
	}
	var written []CacheKey
	info := UpdateInfo{Name: m.Name, Result: view, Args: m.Args, Optimistic: optimistic}

	if m.BeforeQueryUpdates != nil {
		ed := c.newEditor()
		err := m.BeforeQueryUpdates(ed, info)
		ed.close()
		touched.AddAll(ed.touched)
		written = append(written, ed.written...)
		if err != nil {
			c.notifyLocked(touched, written...)
			return view, err
		}
	}

	updated, err := c.applyUpdatesLocked(info, "", touched)
	written = append(written, updated...)
	c.notifyLocked(touched, written...)
	return view, err
}

// ApplyQueryUpdates runs the update functions that other cached queries
// declare under q.Name, handing them view as the result.
func (c *Container) ApplyQueryUpdates(q *Query, view any) error {
	c.mu.Lock()
	defer c.unlockAndFlush()

	skip, _ := c.queries.CacheKey(q)
	touched := make(normalize.KeySet)
	written, err := c.applyUpdatesLocked(UpdateInfo{Name: q.Name, Result: view, Args: q.Args}, skip, touched)
	c.notifyLocked(touched, written...)
	return err
}

// applyUpdatesLocked runs every update function keyed by info.Name, except
// on skip. Touched keys are added to touched.
func (c *Container) applyUpdatesLocked(info UpdateInfo, skip CacheKey, touched normalize.KeySet) ([]CacheKey, error) {
	var written []CacheKey
	for _, key := range c.queries.Keys() {
		if key == skip {
			continue
		}
		it, ok := c.queries.Get(key)
		if !ok || it.Query == nil {
			continue
		}
		fn := it.Query.Updates[info.Name]
		if fn == nil {
			continue
		}
		current, _ := c.viewLocked(it, nil)
		t, err := c.writeLocked(key, it.Query, fn(current, info))
		if err != nil {
			return written, fmt.Errorf("cache: update of %q by %q: %w", it.Query.Name, info.Name, err)
		}
		touched.AddAll(t)
		written = append(written, key)
	}
	return written, nil
}

// Read returns the current view of q's slot.
func (c *Container) Read(q *Query) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.queries.CacheKey(q)
	if err != nil {
		return nil, false
	}
	it, ok := c.queries.Get(key)
	if !ok {
		return nil, false
	}
	if c.inactive != nil {
		c.inactive.Get(key)
	}
	view, _ := c.viewLocked(it, q)
	return view, true
}

// ReadKey returns the current view of the slot stored under key.
func (c *Container) ReadKey(key CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.queries.Get(key)
	if !ok {
		return nil, false
	}
	view, _ := c.viewLocked(it, nil)
	return view, true
}

// Watch is an active subscription to one query slot.
type Watch struct {
	// Key is the watched slot.
	Key CacheKey
	// View is the slot's view at subscription time.
	View any
	// Cached reports whether the slot held data at subscription time.
	Cached bool

	cancel func()
}

// Cancel stops future deliveries. Notifications already queued for the
// watch are dropped. Cancel is idempotent.
func (w *Watch) Cancel() { w.cancel() }

// Watch subscribes fn to q's slot and marks the slot active. The returned
// view is not delivered to fn; only later writes are. q becomes the slot's
// descriptor, so its Updates and Transforms apply from now on.
func (c *Container) Watch(q *Query, fn Listener) (*Watch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, _, err := c.watchLocked(q, fn)
	return h, err
}

// Subscribe is Watch, except that a cached view is also queued to fn. It
// is delivered ahead of any later write to the slot.
func (c *Container) Subscribe(q *Query, fn Listener) (*Watch, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	h, w, err := c.watchLocked(q, fn)
	if err != nil {
		return nil, err
	}
	if h.Cached {
		c.enqueue(h.Key, w, h.View)
	}
	return h, nil
}

func (c *Container) watchLocked(q *Query, fn Listener) (*Watch, *watcher, error) {
	key, err := c.queries.CacheKey(q)
	if err != nil {
		return nil, nil, err
	}
	w := &watcher{q: q, fn: fn}
	c.watchers[key] = append(c.watchers[key], w)

	h := &Watch{Key: key}
	var deps normalize.KeySet
	if it, ok := c.queries.Get(key); ok {
		it.Query = q
		h.View, deps = c.viewLocked(it, q)
		h.Cached = true
	}
	c.tracker.Track(key, deps)
	if c.inactive != nil {
		c.inactive.Remove(key)
	}
	h.cancel = sync.OnceFunc(func() { c.unwatch(key, w) })
	return h, w, nil
}

func (c *Container) unwatch(key CacheKey, w *watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.closed.Store(true)
	ws := c.watchers[key]
	for i, other := range ws {
		if other == w {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) > 0 {
		c.watchers[key] = ws
		return
	}
	delete(c.watchers, key)
	c.tracker.Untrack(key)
	if _, ok := c.queries.Get(key); ok {
		c.touchInactive(key)
	}
}

// Active returns the descriptors of every watched slot, one per slot, in
// key order.
func (c *Container) Active() []*Query {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tracker.Active()
	out := make([]*Query, 0, len(keys))
	for _, key := range keys {
		if ws := c.watchers[key]; len(ws) > 0 {
			out = append(out, ws[0].q)
		}
	}
	return out
}

// IsActive reports whether key has subscribers.
func (c *Container) IsActive(key CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.IsActive(key)
}

// Edit runs fn with an Editor as one atomic step and notifies every
// subscriber affected by its writes, even when fn fails.
func (c *Container) Edit(fn func(e *Editor) error) error {
	c.mu.Lock()
	defer c.unlockAndFlush()

	ed := c.newEditor()
	err := fn(ed)
	ed.close()
	c.notifyLocked(ed.touched, ed.written...)
	return err
}

// UpdateQuery rewrites q's slot from its current view. An absent local
// query starts from q.Default; any other absent query is a
// ConsistencyError.
func (c *Container) UpdateQuery(q *Query, fn func(current any) any) error {
	return c.Edit(func(e *Editor) error {
		return e.UpdateQuery(q, fn)
	})
}

// DeleteQuery drops q's slot. Subscribers stay attached and receive a nil
// view.
func (c *Container) DeleteQuery(q *Query) bool {
	c.mu.Lock()
	defer c.unlockAndFlush()

	key, err := c.queries.CacheKey(q)
	if err != nil {
		return false
	}
	if !c.queries.Delete(key) {
		return false
	}
	if c.inactive != nil {
		c.inactive.Remove(key)
	}
	c.notifyLocked(nil, key)
	return true
}

// PruneInactive drops every slot without subscribers and returns how many
// were dropped. Entity records are kept.
func (c *Container) PruneInactive() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, key := range c.queries.Keys() {
		if c.tracker.IsActive(key) {
			continue
		}
		c.queries.Delete(key)
		n++
	}
	if c.inactive != nil {
		c.inactive.Purge()
	}
	return n
}

// Reset drops every record, slot and interned key. Subscriptions stay
// attached with empty dependency sets; they are not notified.
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries.Reset()
	c.objects.Reset()
	c.tracker.ClearDeps()
	if c.inactive != nil {
		c.inactive.Purge()
	}
}

// Stats returns current counts.
func (c *Container) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Objects: c.objects.Len(),
		Queries: c.queries.Len(),
		Active:  c.tracker.Len(),
		Keys:    c.objects.Keys().Len(),
	}
	if c.inactive != nil {
		s.Inactive = c.inactive.Len()
	}
	return s
}

// writeLocked stores data under key. The slot keeps its descriptor if it
// has one.
func (c *Container) writeLocked(key CacheKey, q *Query, data any) (normalize.KeySet, error) {
	desc := q
	if it, ok := c.queries.Get(key); ok && it.Query != nil {
		desc = it.Query
	}

	touched := make(normalize.KeySet)
	if q.Shape == nil {
		c.queries.Set(key, &Item{Query: desc, Data: data})
		c.touchInactive(key)
		return touched, nil
	}
	res, err := c.normalizer.Normalize(data, q.Shape)
	if err != nil {
		return nil, err
	}
	touched.AddAll(c.objects.AddObjects(res.Entities))
	c.queries.Set(key, &Item{Query: desc, Data: res.Data, Selector: res.Selector})
	c.touchInactive(key)
	return touched, nil
}

// viewLocked denormalizes it. q supplies the transforms; when nil the
// slot's descriptor does.
func (c *Container) viewLocked(it *Item, q *Query) (any, normalize.KeySet) {
	if it.Selector == nil {
		return it.Data, make(normalize.KeySet)
	}
	if q == nil {
		q = it.Query
	}
	var tr schema.Transforms
	if q != nil {
		tr = q.Transforms
	}
	return normalize.Denormalize(it.Data, it.Selector, tr, c.objects)
}

func (c *Container) touchInactive(key CacheKey) {
	if c.inactive == nil || c.tracker.IsActive(key) {
		return
	}
	c.inactive.Add(key, struct{}{})
}

// notifyLocked re-derives the view of every affected subscribed slot,
// refreshes its dependencies and queues the deliveries.
func (c *Container) notifyLocked(touched normalize.KeySet, written ...CacheKey) {
	for _, key := range c.tracker.Affected(touched, written...) {
		ws := c.watchers[key]
		if len(ws) == 0 {
			continue
		}
		var view any
		var deps normalize.KeySet
		if it, ok := c.queries.Get(key); ok {
			view, deps = c.viewLocked(it, nil)
		}
		c.tracker.Track(key, deps)
		for _, w := range ws {
			c.enqueue(key, w, view)
		}
	}
}

func (c *Container) enqueue(key CacheKey, w *watcher, view any) {
	c.outbox = append(c.outbox, func() {
		if w.closed.Load() {
			return
		}
		w.fn(view)
		if c.onNotify != nil {
			c.onNotify(key)
		}
	})
}

func (c *Container) unlockAndFlush() {
	c.mu.Unlock()
	c.flush()
}

// flush delivers queued notifications in order. Only one goroutine drains
// at a time; writes made by a listener queue behind the current delivery.
func (c *Container) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		next := c.outbox[0]
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.mu.Unlock()

		c.deliver(next)
	}
}

func (c *Container) deliver(next func()) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.draining = false
			c.mu.Unlock()
			panic(r)
		}
	}()
	next()
}
