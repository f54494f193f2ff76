package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/graphcache/cache"
)

// Query returns q's view, fetching it when the slot is empty. Equivalent
// in-flight fetches are shared. Local queries are seeded from q.Default.
func (c *Client) Query(ctx context.Context, q *cache.Query) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if view, ok := c.cache.Read(q); ok {
		return view, nil
	}
	if q.Local {
		local := *q
		local.Local = true
		if err := c.seedLocal(&local); err != nil {
			return nil, err
		}
		view, _ := c.cache.Read(q)
		return view, nil
	}
	if q.Fetch == nil {
		return nil, ErrNoFetch
	}
	if err := c.bind(q.Name, q.Fetch); err != nil {
		return nil, err
	}
	key, err := c.cache.CacheKey(q)
	if err != nil {
		return nil, err
	}

	res := newAwait()
	c.fetchQuery(ctx, q, key, res.callbacks())
	return res.wait(ctx)
}

// Mutate runs m and waits for its result view. The optimistic response, if
// any, is applied in the meantime as with ProcessMutation.
func (c *Client) Mutate(ctx context.Context, m *cache.Mutation) (any, error) {
	res := newAwait()
	cbs := res.callbacks()
	if _, err := c.ProcessMutation(ctx, m, Callbacks{OnData: cbs.OnData, OnError: cbs.OnError}); err != nil {
		return nil, err
	}
	return res.wait(ctx)
}

// GetQueryData returns q's cached view without fetching.
func (c *Client) GetQueryData(q *cache.Query) (any, bool) {
	return c.cache.Read(q)
}

// SetQueryData replaces q's view with fn(current). An empty slot is
// written with fn(nil), or fn(q.Default) for a local query.
func (c *Client) SetQueryData(q *cache.Query, fn func(current any) any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	err := c.cache.UpdateQuery(q, fn)
	if errors.Is(err, cache.ErrConsistency) {
		_, _, err = c.cache.SaveQueryData(q, fn(nil))
	}
	return err
}

// RefetchQueries reloads every subscribed, fetchable query that match
// accepts (all of them when match is nil) and waits for the results. Every
// failure is returned, joined.
func (c *Client) RefetchQueries(ctx context.Context, match func(q *cache.Query) bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}
	for _, q := range c.cache.Active() {
		if q.Local || q.Fetch == nil || (match != nil && !match(q)) {
			continue
		}
		key, err := c.cache.CacheKey(q)
		if err != nil {
			fail(err)
			continue
		}
		g.Go(func() error {
			res := newAwait()
			c.refetch(ctx, q, key, res.callbacks())
			if _, err := res.wait(ctx); err != nil {
				fail(fmt.Errorf("refetch %s: %w", key, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ResetStore empties the cache and forgets fetched pages, then re-seeds
// subscribed local queries and refetches every other subscribed query.
func (c *Client) ResetStore(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.cache.Reset()

	c.mu.Lock()
	for _, comp := range c.compounds {
		comp.children = nil
		comp.gen++
	}
	c.mu.Unlock()

	var errs []error
	for _, q := range c.cache.Active() {
		if q.Local {
			if err := c.seedLocal(q); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := c.RefetchQueries(ctx, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeleteQuery drops q's slot and its fetched pages. Subscribers receive a
// nil view.
func (c *Client) DeleteQuery(q *cache.Query) bool {
	key, err := c.cache.CacheKey(q)
	if err != nil {
		return false
	}
	c.mu.Lock()
	delete(c.compounds, key)
	c.mu.Unlock()
	return c.cache.DeleteQuery(q)
}

// InFlight returns the number of fetches in flight.
func (c *Client) InFlight() int { return c.fetcher.Len() }
