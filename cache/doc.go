// Package cache holds the normalized store behind a graphcache client.
//
// A Container owns three pieces of state guarded by one lock: the Objects
// store of entity records keyed by identity, the Queries store of
// normalized results keyed by CacheKey, and the Tracker that maps the
// entities each subscribed query read to that query. Every write computes
// the set of touched entities, asks the Tracker which subscribed queries
// depend on them, and re-delivers fresh views to those subscribers after
// the lock is released, in the order the writes happened.
//
// Mutation hooks edit the store through an Editor, which is only valid for
// the duration of the hook.
package cache
