package client

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/observe"
)

// Callbacks receive the outcome of a query or mutation. Nil fields are
// skipped.
type Callbacks struct {
	// OnData receives each fresh view of a subscribed query, or the result
	// view of a mutation. A nil view means the slot was deleted.
	OnData func(view any)

	// OnOptimistic receives the view of an applied optimistic response.
	OnOptimistic func(view any)

	// OnError receives fetch and mutate failures as *fetch.FetchError, and
	// cache errors raised while storing a result.
	OnError func(err error)

	// OnComplete runs after a fetch or mutation finished successfully.
	OnComplete func()
}

func (cb Callbacks) data(view any) {
	if cb.OnData != nil {
		cb.OnData(view)
	}
}

func (cb Callbacks) optimistic(view any) {
	if cb.OnOptimistic != nil {
		cb.OnOptimistic(view)
	}
}

func (cb Callbacks) fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) complete() {
	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

// compound is the paginated state of one query slot: the root query plus
// every applied FetchMore continuation in request order. Fields other than
// pending and applying are guarded by Client.mu.
type compound struct {
	key      cache.CacheKey
	root     *cache.Query
	children []*cache.Query
	// gen advances when the store is reset; older pages are dropped.
	gen int

	mu       sync.Mutex
	pending  []*page
	applying bool
}

// page is one FetchMore request. Pages are folded into the slot in the
// order they were requested, whatever order their fetches finish in.
type page struct {
	q     *cache.Query
	child *cache.Query
	key   cache.CacheKey
	gen   int

	waiters []Callbacks
	done    bool
	data    any
	err     error
}

// Subscription is a binding layer's handle on a watched query.
type Subscription struct {
	// ID identifies the subscription in logs.
	ID string
	// Key is the watched cache slot.
	Key cache.CacheKey

	c     *Client
	q     *cache.Query
	cb    Callbacks
	watch *cache.Watch
}

// RegisterQuery subscribes cb to q. A cached slot's view is queued to
// OnData ahead of any later write; otherwise q is fetched and the stored
// view reaches OnData through the subscription. Later writes to any entity the
// view depends on are delivered until Unsubscribe.
func (c *Client) RegisterQuery(ctx context.Context, q *cache.Query, cb Callbacks) (*Subscription, error) {
	if q.Local {
		return c.RegisterLocalQuery(q, cb)
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if q.Fetch == nil {
		return nil, ErrNoFetch
	}
	if err := c.bind(q.Name, q.Fetch); err != nil {
		return nil, err
	}

	s, err := c.subscribe(q, cb)
	if err != nil {
		return nil, err
	}
	if s.watch.Cached {
		cb.complete()
		return s, nil
	}
	c.fetchQuery(ctx, q, s.Key, fetch.Callbacks{OnError: cb.fail, OnComplete: cb.complete})
	return s, nil
}

// RegisterLocalQuery subscribes cb to a query whose value lives only in the
// cache. An empty slot is seeded with q.Default. Either way the current
// view reaches OnData through the subscription.
func (c *Client) RegisterLocalQuery(q *cache.Query, cb Callbacks) (*Subscription, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := cache.ValidateName(q.Name); err != nil {
		return nil, err
	}
	local := *q
	local.Local = true

	s, err := c.subscribe(&local, cb)
	if err != nil {
		return nil, err
	}
	if s.watch.Cached {
		return s, nil
	}
	if err := c.seedLocal(&local); err != nil {
		s.Unsubscribe()
		return nil, err
	}
	return s, nil
}

// seedLocal writes q.Default into an empty local slot and notifies its
// subscribers.
func (c *Client) seedLocal(q *cache.Query) error {
	return c.cache.UpdateQuery(q, func(current any) any { return current })
}

func (c *Client) subscribe(q *cache.Query, cb Callbacks) (*Subscription, error) {
	w, err := c.cache.Subscribe(q, cb.data)
	if err != nil {
		return nil, err
	}
	s := &Subscription{ID: uuid.NewString(), Key: w.Key, c: c, q: q, cb: cb, watch: w}
	if q.Merge != nil {
		c.mu.Lock()
		if _, ok := c.compounds[w.Key]; !ok {
			c.compounds[w.Key] = &compound{key: w.Key, root: q}
		}
		c.mu.Unlock()
	}
	return s, nil
}

// View returns the subscription's current view.
func (s *Subscription) View() (any, bool) {
	return s.c.cache.ReadKey(s.Key)
}

// Query returns the subscribed descriptor.
func (s *Subscription) Query() *cache.Query { return s.q }

// Unsubscribe stops future deliveries. The slot's data stays cached. It is
// safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.watch.Cancel()
}

// FetchMore fetches the next page of a paginated query with args and folds
// it into the slot with the query's Merge function. Pages are folded in the
// order FetchMore was called. A request for a page already pending joins it.
// The merged view reaches OnData through the subscription; failures reach
// OnError and do not hold back later pages.
func (s *Subscription) FetchMore(ctx context.Context, args any) error {
	if s.q.Merge == nil || s.q.Local {
		return ErrNotPaginated
	}
	if err := s.c.checkOpen(); err != nil {
		return err
	}
	child := s.q.WithArgs(args)
	childKey, err := s.c.cache.CacheKey(child)
	if err != nil {
		return err
	}

	c := s.c
	c.mu.Lock()
	comp := c.compounds[s.Key]
	if comp == nil {
		comp = &compound{key: s.Key, root: s.q}
		c.compounds[s.Key] = comp
	}
	gen := comp.gen
	c.mu.Unlock()

	meta := observe.OperationMeta{Kind: observe.KindFetch, Name: s.q.Name, CacheKey: string(childKey)}

	comp.mu.Lock()
	for _, p := range comp.pending {
		if p.key == childKey && p.gen == gen {
			p.waiters = append(p.waiters, s.cb)
			comp.mu.Unlock()
			c.mw.Metrics().RecordJoin(ctx, meta)
			return nil
		}
	}
	p := &page{q: s.q, child: child, key: childKey, gen: gen, waiters: []Callbacks{s.cb}}
	comp.pending = append(comp.pending, p)
	comp.mu.Unlock()

	load := c.instrument(meta, s.q.Fetch, args)
	c.fetcher.Do(ctx, string(s.Key)+"+"+string(childKey), fetch.Task(load), fetch.Callbacks{
		OnData:  func(data any) { c.settlePage(comp, p, data, nil) },
		OnError: func(err error) { c.settlePage(comp, p, nil, err) },
	})
	return nil
}

// settlePage records p's outcome and applies every finished page at the
// head of the queue. Only one goroutine applies at a time.
func (c *Client) settlePage(comp *compound, p *page, data any, err error) {
	comp.mu.Lock()
	p.done, p.data, p.err = true, data, err
	if comp.applying {
		comp.mu.Unlock()
		return
	}
	comp.applying = true
	for len(comp.pending) > 0 && comp.pending[0].done {
		next := comp.pending[0]
		comp.pending[0] = nil
		comp.pending = comp.pending[1:]
		comp.mu.Unlock()
		c.applyPage(comp, next)
		comp.mu.Lock()
	}
	comp.applying = false
	comp.mu.Unlock()
}

func (c *Client) applyPage(comp *compound, p *page) {
	defer func() {
		if r := recover(); r != nil {
			comp.mu.Lock()
			comp.applying = false
			comp.mu.Unlock()
			panic(r)
		}
	}()

	c.mu.Lock()
	stale := c.compounds[comp.key] != comp || comp.gen != p.gen
	c.mu.Unlock()

	err := p.err
	if err == nil && !stale {
		if _, _, err = c.cache.SaveMoreQueryData(p.q, p.data); err == nil {
			c.mu.Lock()
			comp.children = append(comp.children, p.child)
			c.mu.Unlock()
		}
	}
	for _, cb := range p.waiters {
		if err != nil {
			cb.fail(err)
			continue
		}
		cb.complete()
	}
}

// Refetch reloads the subscription's query. A paginated query reloads every
// page it has fetched and replaces the slot with the pages folded in
// request order.
func (s *Subscription) Refetch(ctx context.Context) error {
	if s.q.Local {
		return nil
	}
	if err := s.c.checkOpen(); err != nil {
		return err
	}
	s.c.refetch(ctx, s.q, s.Key, fetch.Callbacks{OnError: s.cb.fail, OnComplete: s.cb.complete})
	return nil
}

// refetch reloads q's slot, as a compound fetch when q has pages.
func (c *Client) refetch(ctx context.Context, q *cache.Query, key cache.CacheKey, cb fetch.Callbacks) {
	c.mu.Lock()
	comp := c.compounds[key]
	var pages []*cache.Query
	if comp != nil && len(comp.children) > 0 {
		pages = append([]*cache.Query{comp.root}, comp.children...)
	}
	c.mu.Unlock()

	if pages == nil {
		c.fetchQuery(ctx, q, key, cb)
		return
	}

	children := make([]fetch.Child, len(pages))
	for i, page := range pages {
		pageKey, err := c.cache.CacheKey(page)
		if err != nil {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
		meta := observe.OperationMeta{Kind: observe.KindRefetch, Name: page.Name, CacheKey: string(pageKey)}
		children[i] = fetch.Child{
			Key:  "page|" + string(pageKey),
			Task: fetch.Task(c.instrument(meta, page.Fetch, page.Args)),
		}
	}

	merge := func(acc, next any) any { return q.Merge(acc, next) }
	c.fetcher.DoCompound(ctx, children, merge, fetch.Callbacks{
		OnData: func(data any) {
			if _, _, err := c.cache.SaveQueryData(q, data); err != nil {
				if cb.OnError != nil {
					cb.OnError(err)
				}
				return
			}
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		},
		OnError: cb.OnError,
	})
}

// fetchQuery runs q's fetch deduplicated by its cache key and stores the
// result. Waiters receive the stored view.
func (c *Client) fetchQuery(ctx context.Context, q *cache.Query, key cache.CacheKey, cb fetch.Callbacks) {
	meta := observe.OperationMeta{Kind: observe.KindFetch, Name: q.Name, CacheKey: string(key)}
	load := c.instrument(meta, q.Fetch, q.Args)
	task := func(ctx context.Context) (any, error) {
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_, view, err := c.cache.SaveQueryData(q, data)
		return view, err
	}
	c.fetcher.Do(ctx, string(key), task, cb)
}

// instrument wraps one call of fn with retries, telemetry, and failure
// accounting for the fetch health check.
func (c *Client) instrument(meta observe.OperationMeta, fn func(context.Context, any) (any, error), args any) observe.CallFunc {
	call := c.mw.Wrap(meta, func(ctx context.Context) (any, error) {
		return c.runner.Run(ctx, func(ctx context.Context) (any, error) {
			return fn(ctx, args)
		})
	})
	return func(ctx context.Context) (any, error) {
		data, err := call(ctx)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}
		c.failures.Store(0)
		return data, nil
	}
}

// awaitResult adapts fetch callbacks to a blocking call.
type awaitResult struct {
	once sync.Once
	ch   chan struct{}
	data any
	err  error
}

func newAwait() *awaitResult {
	return &awaitResult{ch: make(chan struct{})}
}

func (a *awaitResult) set(data any, err error) {
	a.once.Do(func() {
		a.data, a.err = data, err
		close(a.ch)
	})
}

func (a *awaitResult) callbacks() fetch.Callbacks {
	return fetch.Callbacks{
		OnData:  func(data any) { a.set(data, nil) },
		OnError: func(err error) { a.set(nil, err) },
		// Compound fetches report success through OnComplete only.
		OnComplete: func() { a.set(nil, nil) },
	}
}

func (a *awaitResult) wait(ctx context.Context) (any, error) {
	select {
	case <-a.ch:
		return a.data, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
