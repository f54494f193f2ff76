package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a CheckAll run when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Report is the outcome of running every registered checker.
type Report struct {
	Status  Status
	Results map[string]Result
}

// Aggregator runs a set of checkers. Checkers are kept in registration
// order; registering a name again replaces the earlier checker.
type Aggregator struct {
	timeout  time.Duration
	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator creates an Aggregator. A non-positive timeout means
// DefaultTimeout.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{timeout: timeout}
}

// Register adds c, replacing any checker with the same name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.index(c.Name()); i >= 0 {
		a.checkers[i] = c
		return
	}
	a.checkers = append(a.checkers, c)
}

// Names returns the registered checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

func (a *Aggregator) index(name string) int {
	return slices.IndexFunc(a.checkers, func(c Checker) bool { return c.Name() == name })
}

// Check runs the checker registered under name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	i := a.index(name)
	var c Checker
	if i >= 0 {
		c = a.checkers[i]
	}
	a.mu.RUnlock()
	if c == nil {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return run(ctx, c), nil
}

// CheckAll runs every checker concurrently and folds the results. An empty
// aggregator reports healthy.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusHealthy, Results: make(map[string]Result, len(checkers))}
	for i, c := range checkers {
		report.Results[c.Name()] = results[i]
		report.Status = report.Status.Worse(results[i].Status)
	}
	return report
}

// run executes c, giving up when ctx is done.
func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() { done <- c.Check(ctx) }()

	select {
	case r := <-done:
		r.Duration = time.Since(start)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		return r
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
