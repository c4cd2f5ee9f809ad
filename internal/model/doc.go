// Package model defines the endpoint identifiers and the canonical records
// produced by the normalizer.
//
// Canonical records are shape-stable: whatever JSON the backend returns,
// consumers only ever see these types. They round-trip through encoding/json
// so the cache store can persist them verbatim.
package model
