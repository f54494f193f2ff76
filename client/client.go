package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/health"
	"github.com/jonwraymond/graphcache/observe"
	"github.com/jonwraymond/graphcache/schema"
)

// Client is the store facade over a normalized cache. It runs fetch and
// mutate functions on its Scheduler, deduplicates equivalent in-flight
// fetches, and coordinates optimistic mutations.
//
// Blocking methods (Query, Mutate, RefetchQueries, ResetStore) wait for
// tasks on the Scheduler. With a fetch.Queue scheduler they must not be
// called from the goroutine that pumps the queue.
type Client struct {
	cfg     Config
	cache   *cache.Container
	fetcher *fetch.Fetcher
	runner  *fetch.Runner
	sched   fetch.Scheduler
	mw      *observe.Middleware
	log     observe.Logger
	health  *health.Aggregator

	observer observe.Observer
	ownsObs  bool

	mu        sync.Mutex
	names     map[string]uintptr
	compounds map[cache.CacheKey]*compound

	failures atomic.Int64
	closed   atomic.Bool
}

var _ cache.Store = (*Client)(nil)

// New creates a Client over registry.
func New(ctx context.Context, registry *schema.Registry, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		names:     make(map[string]uintptr),
		compounds: make(map[cache.CacheKey]*compound),
	}

	c.observer = cfg.Observer
	if c.observer == nil {
		obs, err := observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, fmt.Errorf("client: observer: %w", err)
		}
		c.observer, c.ownsObs = obs, true
	}
	c.log = cfg.Logger
	if c.log == nil {
		c.log = c.observer.Logger()
	}

	metrics, err := observe.NewMetrics(c.observer.Meter())
	if err != nil {
		return nil, fmt.Errorf("client: metrics: %w", err)
	}
	// Failures are logged by the middleware; production clients stay quiet.
	mwLog := c.log
	if cfg.Production {
		mwLog = observe.NopLogger()
	}
	c.mw = observe.NewMiddleware(observe.NewTracer(c.observer.Tracer()), metrics, mwLog)

	c.cache, err = cache.New(registry, cache.Options{
		Keyer:    cfg.Keyer,
		Policy:   cfg.Retention,
		OnNotify: func(cache.CacheKey) { metrics.RecordNotification(context.Background()) },
	})
	if err != nil {
		return nil, err
	}

	c.runner, err = fetch.NewRunner(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	c.sched = cfg.Scheduler
	if c.sched == nil {
		c.sched = fetch.NewGoScheduler()
	}
	c.fetcher = fetch.NewFetcher(fetch.Options{
		Scheduler: c.sched,
		OnJoin: func(key string) {
			metrics.RecordJoin(context.Background(), observe.OperationMeta{
				Kind:     observe.KindFetch,
				Name:     nameOf(key),
				CacheKey: key,
			})
		},
	})

	c.health = health.NewAggregator(cfg.HealthTimeout)
	c.health.Register(c.cacheChecker())
	c.health.Register(c.fetchChecker())
	return c, nil
}

// nameOf recovers the query name from a dedup key.
func nameOf(key string) string {
	name, _, _ := strings.Cut(strings.TrimPrefix(key, "page|"), ":")
	return name
}

// Cache returns the underlying container.
func (c *Client) Cache() *cache.Container { return c.cache }

// Scheduler returns the scheduler the client runs tasks on.
func (c *Client) Scheduler() fetch.Scheduler { return c.sched }

// Health returns the client's health checks.
func (c *Client) Health() *health.Aggregator { return c.health }

// Close shuts down the Observer if the client created it. Tasks already
// scheduled still run.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.ownsObs {
		return c.observer.Shutdown(ctx)
	}
	return nil
}

func (c *Client) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// bind records that name is served by fn. Binding the same name to a
// different function is an error; a nil fn binds nothing.
func (c *Client) bind(name string, fn any) error {
	if err := cache.ValidateName(name); err != nil {
		return err
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.IsNil() {
		return nil
	}
	ptr := v.Pointer()

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.names[name]; ok && prev != ptr {
		return fmt.Errorf("%w: %q", ErrNameConflict, name)
	}
	c.names[name] = ptr
	return nil
}

// logHookError reports a failure nobody else will see.
func (c *Client) logHookError(ctx context.Context, meta observe.OperationMeta, msg string, err error) {
	if err == nil {
		return
	}
	var fe *fetch.FetchError
	if c.cfg.Production && errors.As(err, &fe) {
		return
	}
	c.log.WithOperation(meta).Error(ctx, msg, observe.Field{Key: "error", Value: err})
}
