// Package syncer keeps every backend endpoint's canonical record current.
//
// # Lifecycle
//
// Each endpoint has an independent lane with a generation counter and the
// cancel func of its in-flight request:
//
//	Idle ──Refresh──→ Fetching ──OK──────→ normalize, Apply, persist → Idle
//	                     │      ──Failed──→ RecordFailure             → Idle
//	                     │      ──Cancelled / superseded──→ discard   → Idle
//	                     └─ a newer Refresh cancels this request first
//
// A result is written only if its generation is still the lane's newest when
// it completes; the check and the write happen under the lane lock, so a late
// response can never overwrite state written by a newer request.
//
// # Modes
//
// Foreground refreshes always fetch and drive the endpoint's loading flag.
// Background refreshes come from the cron timers and fetch only while the
// endpoint has a failure streak, unless Options.PollWhenHealthy is set.
//
// # Startup
//
// InitialLoad fetches payments, user_usage, interface_stats and router_health
// in that order with Options.Stagger between them. Start registers one
// "@every" schedule per endpoint (15s, 20s, 25s and 30s by default).
package syncer
