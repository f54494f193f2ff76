package client

import (
	"context"
	"fmt"

	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/health"
)

// Check names registered on every Client's Aggregator.
const (
	CheckCache = "cache"
	CheckFetch = "fetch"
)

func (c *Client) cacheChecker() health.Checker {
	return health.CheckerFunc(CheckCache, func(context.Context) health.Result {
		if c.closed.Load() {
			return health.Unhealthy("client closed", ErrClosed)
		}
		s := c.cache.Stats()
		return health.Healthy("cache ready").WithDetails(map[string]any{
			"objects":  s.Objects,
			"queries":  s.Queries,
			"active":   s.Active,
			"inactive": s.Inactive,
			"keys":     s.Keys,
		})
	})
}

// fetchChecker degrades after one failed call and turns unhealthy after
// UnhealthyAfter consecutive failures, or while the fetch breaker is open.
// A success resets the count.
func (c *Client) fetchChecker() health.Checker {
	return health.CheckerFunc(CheckFetch, func(context.Context) health.Result {
		failures := c.failures.Load()
		details := map[string]any{
			"in_flight":            c.fetcher.Len(),
			"consecutive_failures": failures,
		}
		breaker := c.runner.Breaker()
		if breaker != nil {
			details["breaker"] = breaker.State().String()
		}
		var r health.Result
		switch {
		case breaker != nil && breaker.State() == fetch.BreakerOpen:
			r = health.Unhealthy("fetch breaker open", fetch.ErrBreakerOpen)
		case c.cfg.UnhealthyAfter > 0 && failures >= int64(c.cfg.UnhealthyAfter):
			r = health.Unhealthy("fetches failing", fmt.Errorf("%d consecutive failures", failures))
		case failures > 0:
			r = health.Degraded("recent fetch failure")
		default:
			r = health.Healthy("fetches ok")
		}
		return r.WithDetails(details)
	})
}
