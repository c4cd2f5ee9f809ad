// Package cachestore persists canonical records across restarts.
//
// The store is a single SQLite key/value table. Each endpoint's record is one
// JSON blob under its cache key (cache_payments, cache_usage, cache_iface,
// cache_router); cache_updated holds the instant of the last successful write
// and theme holds the dark/light preference. Writes replace whole values, so
// the last successful write per endpoint wins.
package cachestore
