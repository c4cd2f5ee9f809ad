// Package config loads the starwatch TOML configuration.
//
// # Overview
//
// Starwatch talks to a spreadsheet-backed HTTP script that needs a base URL
// and a shared secret. Everything else has a default, so a minimal setup is
// just two environment variables.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/starwatch/config.toml
//  3. If the file doesn't exist, start from defaults
//  4. Apply STARWATCH_API_BASE_URL, STARWATCH_SECRET_KEY and
//     STARWATCH_LISTEN_ADDR over whatever the file said
//  5. Validate
//
// # Default Values
//
//   - Cache database: ~/.local/share/starwatch/cache.db
//   - Log file: ~/.local/share/starwatch/starwatch.log (used while the TUI runs)
//   - Log level: info
//   - Request timeout: none
//   - Initial-load stagger: 300ms
//   - Background intervals: payments 15s, user_usage 20s,
//     interface_stats 25s, router_health 30s
//   - HTTP API: disabled
//
// # TOML Format
//
//	api_base_url = "https://script.google.com/macros/s/XXXX/exec"
//	secret_key_file = "~/.config/starwatch/secret"
//	listen_addr = "127.0.0.1:7488"
//	request_timeout = "20s"
//
//	[intervals]
//	payments = "30s"
//
// secret_key takes precedence over secret_key_file. Durations use Go syntax
// ("300ms", "1m"). Tilde expansion applies to every path field.
//
// # Error Handling
//
// Load returns errors for unreadable files, TOML or duration parse failures
// (prefixed "parse config"), unknown interval names, and a missing or
// non-http(s) base URL or missing secret. A missing file is not an error.
package config
