package fetch

import "sync"

// Scheduler runs asynchronous work: fetches, mutations, optimistic applies
// and after-update hooks.
//
// Contract:
// - Go must not run fn synchronously inside the call.
// - Concurrency: implementations must be safe for concurrent use.
type Scheduler interface {
	Go(fn func())
}

// GoScheduler runs every task on its own goroutine.
type GoScheduler struct {
	wg sync.WaitGroup
}

// NewGoScheduler creates a goroutine scheduler.
func NewGoScheduler() *GoScheduler {
	return &GoScheduler{}
}

// Go starts fn on a new goroutine.
func (s *GoScheduler) Go(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every started task has returned.
func (s *GoScheduler) Wait() {
	s.wg.Wait()
}

// Queue is a cooperative scheduler: tasks run only when the owner pumps
// the queue, one at a time, in submission order. A binding layer with its
// own event loop uses it to keep every cache step on that loop.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Go appends fn to the queue.
func (q *Queue) Go(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// RunNext runs the oldest queued task. It returns false if the queue was
// empty.
func (q *Queue) RunNext() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	fn()
	return true
}

// Drain runs tasks until the queue is empty, including tasks queued while
// draining, and returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for q.RunNext() {
		n++
	}
	return n
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

var (
	_ Scheduler = (*GoScheduler)(nil)
	_ Scheduler = (*Queue)(nil)
)
