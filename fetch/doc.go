// Package fetch runs the asynchronous side of a graphcache client.
//
// A Fetcher deduplicates in-flight requests by key: equivalent requests made
// while one is outstanding share its single outcome. DoCompound fans a
// paginated query out into one request per page and folds the page results
// in order. A Runner applies retry with exponential backoff, a concurrency
// limit and an optional Breaker to caller-supplied functions.
//
// Work runs on a Scheduler. GoScheduler starts goroutines; Queue runs tasks
// only when pumped, for callers that drive the cache from one event loop.
//
// Failures of caller-supplied functions, including panics, are reported as
// *FetchError values matching ErrFetch.
package fetch
