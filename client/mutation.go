package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/observe"
)

// State is the progress of one mutation run.
type State int32

const (
	// StatePending means neither the optimistic nor the real result has
	// been applied.
	StatePending State = iota
	// StateOptimistic means the optimistic response is applied and the real
	// call is outstanding.
	StateOptimistic
	// StateSettled means the real call returned. Nothing optimistic is
	// applied after this point.
	StateSettled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOptimistic:
		return "optimistic"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// MutationRun tracks one in-progress mutation.
//
// The optimistic apply and the real apply are serialized by a run lock and
// gated on State: the optimistic apply is a no-op once the run settled, so
// it can never land after, or instead of, the real result.
type MutationRun struct {
	// ID identifies the run in logs.
	ID string

	c    *Client
	m    *cache.Mutation
	cb   Callbacks
	meta observe.OperationMeta

	mu    sync.Mutex // run lock
	state atomic.Int32
	done  chan struct{}
}

// State returns the run's current state.
func (r *MutationRun) State() State { return State(r.state.Load()) }

// Done is closed once the run delivered its final callback.
func (r *MutationRun) Done() <-chan struct{} { return r.done }

// ProcessMutation starts m. The mutate call and, when m.Optimistic is set,
// the optimistic apply are scheduled as separate tasks, the optimistic apply
// first. It is skipped if the real result has already settled.
// The outcome reaches cb: OnOptimistic for an applied optimistic response,
// then OnData and OnComplete with the real result view, or OnError.
func (c *Client) ProcessMutation(ctx context.Context, m *cache.Mutation, cb Callbacks) (*MutationRun, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if m.Mutate == nil {
		return nil, ErrNoMutate
	}
	if err := c.bind(m.Name, m.Mutate); err != nil {
		return nil, err
	}

	r := &MutationRun{
		ID:   uuid.NewString(),
		c:    c,
		m:    m,
		cb:   cb,
		meta: observe.OperationMeta{Kind: observe.KindMutation, Name: m.Name},
		done: make(chan struct{}),
	}
	call := c.instrument(r.meta, m.Mutate, m.Args)

	if m.Optimistic != nil {
		c.sched.Go(r.applyOptimistic)
	}
	c.sched.Go(func() {
		result, err := safeCall(ctx, m.Name, call)
		r.settle(ctx, result, err)
	})
	return r, nil
}

// safeCall runs call, turning failures and panics into *fetch.FetchError.
func safeCall(ctx context.Context, key string, call observe.CallFunc) (data any, err error) {
	defer func() {
		if v := recover(); v != nil {
			data, err = nil, fetch.Wrap(key, panicError{v})
		}
	}()
	data, err = call(ctx)
	return data, fetch.Wrap(key, err)
}

func (r *MutationRun) applyOptimistic() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StatePending {
		return
	}
	view, err := r.c.cache.ApplyMutation(r.m, r.m.Optimistic, true)
	if err != nil {
		r.c.logHookError(context.Background(), r.meta, "optimistic apply failed", err)
		return
	}
	r.state.Store(int32(StateOptimistic))
	r.cb.optimistic(view)
}

func (r *MutationRun) settle(ctx context.Context, result any, callErr error) {
	defer close(r.done)

	r.mu.Lock()
	r.state.Store(int32(StateSettled))
	if callErr != nil {
		r.mu.Unlock()
		r.cb.fail(callErr)
		return
	}
	view, err := r.c.cache.ApplyMutation(r.m, result, false)
	r.mu.Unlock()
	if err != nil {
		r.cb.fail(err)
		return
	}

	if err := r.c.afterUpdates(ctx, r.m, r.meta, view); err != nil {
		r.cb.fail(err)
		return
	}
	r.cb.data(view)
	r.cb.complete()
}

// afterUpdates runs m.AfterQueryUpdates: inline when m.SyncMode is set,
// otherwise as its own scheduler task whose error is only logged.
func (c *Client) afterUpdates(ctx context.Context, m *cache.Mutation, meta observe.OperationMeta, view any) error {
	if m.AfterQueryUpdates == nil {
		return nil
	}
	info := cache.UpdateInfo{Name: m.Name, Result: view, Args: m.Args}
	run := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = panicError{v}
			}
		}()
		return m.AfterQueryUpdates(ctx, c, info)
	}
	if m.SyncMode {
		return run()
	}
	c.sched.Go(func() {
		c.logHookError(ctx, meta, "after query updates failed", run())
	})
	return nil
}

// ProcessLocalMutation applies m with its Args as the result. The cache
// step runs before ProcessLocalMutation returns. AfterQueryUpdates follows
// the same rules as for remote mutations.
func (c *Client) ProcessLocalMutation(ctx context.Context, m *cache.Mutation) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := cache.ValidateName(m.Name); err != nil {
		return nil, err
	}
	view, err := c.cache.ApplyMutation(m, m.Args, false)
	if err != nil {
		return view, err
	}
	meta := observe.OperationMeta{Kind: observe.KindMutation, Name: m.Name}
	if err := c.afterUpdates(ctx, m, meta, view); err != nil {
		return view, err
	}
	return view, nil
}
