package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Worse returns the more severe of s and o.
func (s Status) Worse(o Status) Status {
	if o > s {
		return o
	}
	return s
}

// Result is the outcome of one check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker inspects one component.
//
// Contract:
// - Concurrency: Check may be called concurrently.
// - Context: Check should return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

// CheckerFunc adapts fn to a Checker named name.
func CheckerFunc(name string, fn func(context.Context) Result) Checker {
	return &funcChecker{name: name, fn: fn}
}

func (f *funcChecker) Name() string                     { return f.name }
func (f *funcChecker) Check(ctx context.Context) Result { return f.fn(ctx) }
