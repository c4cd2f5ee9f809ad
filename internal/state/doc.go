// Package state provides thread-safe state management for the dashboard.
//
// # Overview
//
// This package holds the Application Snapshot: the four canonical records,
// the last successful update instant, a monotonically increasing version and
// the per-endpoint status (loading flag, last error, failure streak). It is
// the coordination point where the sync engine's writes meet the consumers
// (terminal UI, HTTP API, WebSocket stream).
//
// # Architecture
//
//	Producer (syncer.Engine):        Consumers:
//	┌──────────────────────┐        ┌──────────────────────┐
//	│ Seed(cached records) │        │ Snapshot()           │
//	│ SetLoading()         │        │ Subscribe(listener)  │
//	│ Apply(record)  ──────┼──emit─→│   ↓                  │
//	│ RecordFailure()      │        │ render / push        │
//	└──────────────────────┘        └──────────────────────┘
//
// # Versioning
//
// Apply advances Version once per successful normalize-and-store, whichever
// endpoint produced it, and is the only write that notifies listeners along
// with Reset. Seed installs cached records at startup without touching the
// version, and failures only change the endpoint status; consumers that show
// the failure banner read it on their own refresh tick.
//
// # Defensive Copying
//
// Snapshot returns a copy of the status map and timestamp. Records are
// replaced wholesale and never mutated in place, so snapshots share them.
//
// # Listener Ordering
//
// Listeners run synchronously after the write lock is released, serialized
// by a second mutex so they observe versions in increasing order.
package state
