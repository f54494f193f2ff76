package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
)

// Policy configures retries and concurrency for fetch and mutate functions.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 1 (no retry)
	MaxAttempts int `toml:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration `toml:"initial_delay"`

	// MaxDelay caps the delay between retries.
	// Default: 5s
	MaxDelay time.Duration `toml:"max_delay"`

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64 `toml:"multiplier"`

	// MaxConcurrent bounds the number of functions running at once.
	// Zero means unbounded.
	MaxConcurrent int64 `toml:"max_concurrent"`

	// BreakerThreshold is the number of consecutive failed calls after which
	// the Runner's breaker opens and rejects calls with ErrBreakerOpen.
	// Zero disables the breaker.
	BreakerThreshold int `toml:"breaker_threshold"`

	// BreakerCooldown is how long an open breaker waits before letting one
	// probe call through.
	// Default: 30s
	BreakerCooldown time.Duration `toml:"breaker_cooldown"`

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool `toml:"-"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `toml:"-"`
}

// DefaultPolicy returns a policy without retries or a concurrency limit.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Validate reports an invalid policy.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must be >= 0", ErrInvalidPolicy)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must be >= 0", ErrInvalidPolicy)
	}
	if p.MaxDelay > 0 && p.InitialDelay > p.MaxDelay {
		return fmt.Errorf("%w: initial delay exceeds max delay", ErrInvalidPolicy)
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("%w: multiplier must be >= 0", ErrInvalidPolicy)
	}
	if p.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max concurrent must be >= 0", ErrInvalidPolicy)
	}
	if p.BreakerThreshold < 0 || p.BreakerCooldown < 0 {
		return fmt.Errorf("%w: breaker settings must be >= 0", ErrInvalidPolicy)
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.BreakerCooldown <= 0 {
		p.BreakerCooldown = defaultCooldown
	}
	return p
}

// Runner applies a Policy to calls.
//
// Contract:
// - Concurrency: safe for concurrent use; the concurrency limit is shared
//   by every call made through one Runner.
type Runner struct {
	policy  Policy
	sem     *semaphore.Weighted
	breaker *Breaker
}

// NewRunner validates p and creates a Runner.
func NewRunner(p Policy) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{policy: p.withDefaults()}
	if p.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(p.MaxConcurrent)
	}
	if p.BreakerThreshold > 0 {
		r.breaker = NewBreaker(p.BreakerThreshold, r.policy.BreakerCooldown)
	}
	return r, nil
}

// Policy returns the effective policy.
func (r *Runner) Policy() Policy { return r.policy }

// Breaker returns the Runner's breaker, or nil when the policy has none.
func (r *Runner) Breaker() *Breaker { return r.breaker }

// Run calls fn under the concurrency limit, retrying failures with
// exponential backoff. The last error is returned once attempts run out.
// An open breaker rejects the call before fn runs; the outcome of the whole
// run, retries included, counts once toward the breaker.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if r.breaker == nil {
		return r.run(ctx, fn)
	}
	if err := r.breaker.Allow(); err != nil {
		return nil, err
	}
	data, err := r.run(ctx, fn)
	r.breaker.Record(err)
	return data, err
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer r.sem.Release(1)
	}

	if r.policy.MaxAttempts <= 1 {
		return fn(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialDelay
	b.MaxInterval = r.policy.MaxDelay
	b.Multiplier = r.policy.Multiplier

	attempt := 0
	op := func() (any, error) {
		attempt++
		data, err := fn(ctx)
		if err != nil && r.policy.RetryIf != nil && !r.policy.RetryIf(err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}
	notify := func(err error, delay time.Duration) {
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
}
