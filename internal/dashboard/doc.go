// Package dashboard is the aggregate state controller consumed by the
// terminal UI and the HTTP API.
//
// It exposes the current snapshot and change subscription from package state,
// and services user intents: retrying failed endpoints, refreshing
// everything, saving an edited row, the per-counterparty usage window,
// payment history, theme toggling and clearing the cache.
package dashboard
