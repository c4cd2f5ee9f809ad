// Package ui is the Bubble Tea terminal dashboard.
//
// The UI is a thin consumer of the dashboard controller: it polls the current
// snapshot on a tick and renders router health, interface totals and top
// sessions, today's usage and payment totals. Endpoints whose latest attempt
// failed are listed in a banner above the cached data.
//
// Key bindings live in keys.go; r retries failed endpoints, R refreshes
// everything, T flips the persisted dark/light theme and q quits. Blocking
// controller calls run as tea.Cmds so the update loop never waits on the
// network.
package ui
