// Package client is the store facade of graphcache.
//
// A Client wraps a cache.Container with the asynchronous half of the
// system: it runs fetch and mutate functions on a fetch.Scheduler, shares
// equivalent in-flight fetches, paginates with FetchMore, and applies
// optimistic mutation responses that never land after the real result.
//
// Subscribers receive data through the container's notifications, so a
// single fetch feeds every subscription on its slot and later writes to any
// entity a view read are delivered without refetching.
//
// Every call into user code is wrapped by an observe.Middleware (tracing,
// metrics, logging) and a fetch.Runner (retries, concurrency limit). The
// Client's health.Aggregator reports on the cache and on recent fetch
// failures.
package client
