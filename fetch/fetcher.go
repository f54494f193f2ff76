package fetch

import (
	"context"
	"sync"
)

// Task is one deduplicated unit of work, usually a fetch followed by the
// cache write of its result.
type Task func(ctx context.Context) (any, error)

// Callbacks receive the outcome of a request. On success OnData runs, then
// OnComplete. On failure only OnError runs, with a *FetchError. Nil fields
// are skipped.
type Callbacks struct {
	OnData     func(data any)
	OnError    func(err error)
	OnComplete func()
}

func (cb Callbacks) deliver(data any, err error) {
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	}
	if cb.OnData != nil {
		cb.OnData(data)
	}
	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

// Options configures a Fetcher.
type Options struct {
	// Scheduler runs tasks. If nil, a GoScheduler is used.
	Scheduler Scheduler

	// OnJoin is called when a request joins one already in flight.
	OnJoin func(key string)
}

// Fetcher deduplicates in-flight requests by key. The first request for a
// key runs its task; requests for the same key made before it settles only
// register their callbacks. Every waiter observes the same outcome.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - The in-flight record is removed before any callback runs, so a request
//   made from a callback, or after settlement, starts a new task.
type Fetcher struct {
	sched  Scheduler
	onJoin func(string)

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	waiters []Callbacks
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	sched := opts.Scheduler
	if sched == nil {
		sched = NewGoScheduler()
	}
	return &Fetcher{
		sched:    sched,
		onJoin:   opts.OnJoin,
		inflight: make(map[string]*call),
	}
}

// Scheduler returns the scheduler tasks run on.
func (f *Fetcher) Scheduler() Scheduler { return f.sched }

// Do runs task for key, or joins the request already in flight for key.
// It returns true if it joined. Task errors and panics reach OnError as a
// *FetchError.
func (f *Fetcher) Do(ctx context.Context, key string, task Task, cb Callbacks) bool {
	f.mu.Lock()
	if c, ok := f.inflight[key]; ok {
		c.waiters = append(c.waiters, cb)
		f.mu.Unlock()
		if f.onJoin != nil {
			f.onJoin(key)
		}
		return true
	}
	c := &call{waiters: []Callbacks{cb}}
	f.inflight[key] = c
	f.mu.Unlock()

	f.sched.Go(func() {
		data, err := run(ctx, key, task)

		f.mu.Lock()
		delete(f.inflight, key)
		waiters := c.waiters
		f.mu.Unlock()

		for _, w := range waiters {
			w.deliver(data, err)
		}
	})
	return false
}

// InFlight reports whether a request for key is in flight.
func (f *Fetcher) InFlight(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inflight[key]
	return ok
}

// Len returns the number of requests in flight.
func (f *Fetcher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

func run(ctx context.Context, key string, task Task) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, &FetchError{Key: key, Err: recovered(r)}
		}
	}()
	data, err = task(ctx)
	if err != nil {
		return nil, Wrap(key, err)
	}
	return data, nil
}
