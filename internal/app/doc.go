// Package app is the composition root for starwatch.
//
// Run loads configuration, opens the SQLite cache, builds the backend client,
// state store, sync engine and dashboard controller, then restores cached
// records so the first frame has data before any network call returns.
//
//	Run()
//	  ├─> config.Load()        TOML file + STARWATCH_* environment
//	  ├─> cachestore.Open()    durable last-good records and theme
//	  ├─> sheets.NewClient()   backend fetcher
//	  ├─> syncer.New()         per-endpoint lanes and timers
//	  ├─> dashboard.Restore()  cached records into the store
//	  ├─> StartPoller()        timers + staggered initial load
//	  ├─> httpapi.Server.Run() optional, when listen_addr is set
//	  └─> ui.Run()             TUI (blocks) unless headless
//
// In headless mode logs go to stderr in console format and Run blocks until
// the context is cancelled. With the TUI, logs are written as JSON lines to
// the configured log file, which the UI can tail.
//
// Errors before the poller starts (config, cache, client) are returned.
// Fetch failures after that are recorded per endpoint and never end the run.
// An HTTP listener failure ends the run and is returned.
package app
