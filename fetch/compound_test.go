package fetch

import (
	"context"
	"errors"
	"testing"
)

func concat(acc, next any) any { return acc.(string) + next.(string) }

func TestDoCompound_FoldsInRegistrationOrder(t *testing.T) {
	q := NewQueue()
	f := NewFetcher(Options{Scheduler: q})

	// Children complete in reverse order; the fold must not care.
	results := map[string]string{"p1": "*1*", "p2": "*2*", "p3": "*3*"}
	var order []string
	task := func(key string) Task {
		return func(context.Context) (any, error) {
			order = append(order, key)
			return results[key], nil
		}
	}
	children := []Child{{Key: "p1", Task: task("p1")}, {Key: "p2", Task: task("p2")}, {Key: "p3", Task: task("p3")}}

	var dataCalls, completeCalls int
	var got any
	f.DoCompound(context.Background(), children, concat, Callbacks{
		OnData:     func(d any) { dataCalls++; got = d },
		OnComplete: func() { completeCalls++ },
	})

	// Run the queued tasks in reverse.
	q.mu.Lock()
	for i, j := 0, len(q.tasks)-1; i < j; i, j = i+1, j-1 {
		q.tasks[i], q.tasks[j] = q.tasks[j], q.tasks[i]
	}
	q.mu.Unlock()
	q.Drain()

	if order[0] != "p3" {
		t.Fatalf("test setup: expected reverse completion, got %v", order)
	}
	if got != "*1**2**3*" {
		t.Errorf("folded result = %v, want *1**2**3*", got)
	}
	if dataCalls != 1 || completeCalls != 1 {
		t.Errorf("OnData called %d times, OnComplete %d times; want 1 and 1", dataCalls, completeCalls)
	}
}

func TestDoCompound_FirstErrorShortCircuits(t *testing.T) {
	q := NewQueue()
	f := NewFetcher(Options{Scheduler: q})
	errPage := errors.New("page 2 failed")

	ok := func(v string) Task { return func(context.Context) (any, error) { return v, nil } }
	fail := func(context.Context) (any, error) { return nil, errPage }

	// An independent waiter on the first child still sees its own data.
	var independent outcome
	f.Do(context.Background(), "p1", ok("*1*"), independent.callbacks())

	var errs []error
	var dataCalls int
	f.DoCompound(context.Background(),
		[]Child{{Key: "p1", Task: ok("*1*")}, {Key: "p2", Task: fail}, {Key: "p3", Task: ok("*3*")}},
		concat,
		Callbacks{
			OnData:  func(any) { dataCalls++ },
			OnError: func(err error) { errs = append(errs, err) },
		})
	q.Drain()

	if len(errs) != 1 || !errors.Is(errs[0], errPage) {
		t.Errorf("errors = %v, want exactly the page 2 failure", errs)
	}
	if dataCalls != 0 {
		t.Errorf("OnData called %d times after an error", dataCalls)
	}
	if independent.data != "*1*" {
		t.Errorf("independent waiter got %v", independent.data)
	}
}

func TestDoCompound_NoChildren(t *testing.T) {
	f := NewFetcher(Options{Scheduler: NewQueue()})
	var o outcome
	f.DoCompound(context.Background(), nil, concat, o.callbacks())
	if !o.complete || o.data != nil {
		t.Errorf("empty compound should complete with nil data, got %+v", o)
	}
}

func TestDoCompound_NilMergeKeepsLast(t *testing.T) {
	q := NewQueue()
	f := NewFetcher(Options{Scheduler: q})
	ok := func(v string) Task { return func(context.Context) (any, error) { return v, nil } }

	var o outcome
	f.DoCompound(context.Background(), []Child{{Key: "a", Task: ok("x")}, {Key: "b", Task: ok("y")}}, nil, o.callbacks())
	q.Drain()
	if o.data != "y" {
		t.Errorf("data = %v, want y", o.data)
	}
}
