// Package httpapi exposes the dashboard controller over HTTP.
//
// JSON routes live under /api/v1 and mirror the controller operations
// (snapshot, failed endpoints, retry, full refresh, row edits, counterparty
// windows and payment history, theme and cache). /api/v1/stream upgrades to a
// websocket that pushes the snapshot whenever its version advances.
// /healthz and /metrics sit at the root.
package httpapi
