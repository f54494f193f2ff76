package fetch

import (
	"context"
	"sync"
)

// Child is one part of a compound request.
type Child struct {
	Key  string
	Task Task
}

// MergeFunc folds the next child result into the accumulated value.
type MergeFunc func(acc, next any) any

// DoCompound fans out one deduplicated request per child. Once every child
// has reported, their results are folded with merge in child order and cb
// receives OnData and OnComplete exactly once. The first child error is
// delivered to OnError and suppresses the compound result; the children's
// own requests, and any other waiters on them, are unaffected.
func (f *Fetcher) DoCompound(ctx context.Context, children []Child, merge MergeFunc, cb Callbacks) {
	if len(children) == 0 {
		cb.deliver(nil, nil)
		return
	}
	ctrl := &compound{
		merge:    merge,
		cb:       cb,
		results:  make([]any, len(children)),
		reported: make([]bool, len(children)),
	}
	for i, child := range children {
		f.Do(ctx, child.Key, child.Task, Callbacks{
			OnData:  func(data any) { ctrl.data(i, data) },
			OnError: ctrl.fail,
		})
	}
}

// compound accumulates child results by position.
type compound struct {
	merge MergeFunc
	cb    Callbacks

	mu       sync.Mutex
	results  []any
	reported []bool
	done     bool
}

func (c *compound) data(i int, data any) {
	c.mu.Lock()
	if c.done || c.reported[i] {
		c.mu.Unlock()
		return
	}
	c.results[i] = data
	c.reported[i] = true
	for _, ok := range c.reported {
		if !ok {
			c.mu.Unlock()
			return
		}
	}
	c.done = true
	results := c.results
	c.mu.Unlock()

	acc := results[0]
	for _, next := range results[1:] {
		if c.merge == nil {
			acc = next
			continue
		}
		acc = c.merge(acc, next)
	}
	c.cb.deliver(acc, nil)
}

func (c *compound) fail(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()

	c.cb.deliver(nil, err)
}
