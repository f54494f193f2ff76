// Package persist moves cache snapshots in and out of a process.
//
// Encode and Decode convert a cache.Snapshot to and from JSON. Seal wraps a
// snapshot in an HS256-signed token so that a snapshot restored from shared
// storage is rejected if it was altered. SaveFile and LoadFile combine the
// two with an atomic file write.
package persist
