// Package sheets provides an HTTP client for the spreadsheet-backed API.
//
// # Overview
//
// The backend exposes every sheet behind one URL. A GET selects the sheet with
// the sheet query parameter and authenticates with key:
//
//	GET <base>?key=<secret>&sheet=payments[&date=2025-08-08&maxSamples=5]
//
// Edits are posted to the same URL with a {"row": {...}} body.
//
// # Results
//
// Fetch never returns a Go error. It returns a Result with one of three
// statuses so callers can match explicitly:
//
//   - StatusOK: Body holds the raw, well-formed JSON payload
//   - StatusFailed: Err is an *HTTPError, ErrInvalidJSON or a transport error
//   - StatusCancelled: the caller's context was cancelled; not a failure
//
// Payloads are not decoded here. Shape handling belongs to package normalize,
// since the backend's JSON drifts between deployments.
//
// # Request IDs
//
// Each request carries a random X-Request-ID header, also returned in
// Result.RequestID for log correlation.
package sheets
