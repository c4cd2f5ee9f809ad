// Package normalize turns raw backend payloads into canonical records.
//
// Every function here is total: unexpected shapes, wrong types and malformed
// JSON degrade to empty defaults instead of returning errors, because the
// spreadsheet backend drifts. The only time dependency is the injected clock,
// used for "today" totals and uptime anchors.
package normalize

import (
	"time"

	"github.com/starnet/starwatch/internal/model"
)

// Normalizer converts raw endpoint payloads into canonical records.
type Normalizer struct {
	Now func() time.Time
}

// New returns a Normalizer using clock, or time.Now when clock is nil.
func New(clock func() time.Time) Normalizer {
	return Normalizer{Now: clock}
}

func (n Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// Normalize dispatches raw to the normalizer for ep.
func (n Normalizer) Normalize(ep model.Endpoint, raw []byte) model.Record {
	rec := model.Record{Endpoint: ep}
	switch ep {
	case model.Payments:
		v := n.Payments(raw)
		rec.Payments = &v
	case model.UserUsage:
		v := n.Usage(raw)
		rec.Usage = &v
	case model.InterfaceStats:
		v := n.Interface(raw)
		rec.Interface = &v
	case model.RouterHealth:
		v := n.Router(raw)
		rec.Router = &v
	}
	return rec
}
