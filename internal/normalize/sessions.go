package normalize

import (
	"sort"
	"strings"
	"time"
)

// Session is a display view over one interface_stats row.
type Session struct {
	Interface string
	RXMB      float64
	TXMB      float64
	RXHuman   string
	TXHuman   string
	Timestamp *time.Time
	Row       map[string]any
}

// Sort keys accepted by SortSessions.
const (
	SortByRX        = "RX_MB"
	SortByTX        = "TX_MB"
	SortByInterface = "Interface"
)

// Sessions builds display views for interface rows.
func Sessions(rows []map[string]any, loc *time.Location) []Session {
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		s := Session{
			Interface: asString(firstTruthy(r, "Interface", "iface", "interface")),
			RXMB:      asFloat(first(r, "RX_MB", "RX")),
			TXMB:      asFloat(first(r, "TX_MB", "TX")),
			RXHuman:   asString(r["RX_HUMAN"]),
			TXHuman:   asString(r["TX_HUMAN"]),
			Row:       r,
		}
		if s.Interface == "" {
			s.Interface = missingValue
		}
		if s.RXHuman == "" {
			s.RXHuman = FormatMB(s.RXMB)
		}
		if s.TXHuman == "" {
			s.TXHuman = FormatMB(s.TXMB)
		}
		if t, ok := ParseTimestamp(asString(firstTruthy(r, "Timestamp", "Time", "timestamp")), loc); ok {
			s.Timestamp = &t
		}
		out = append(out, s)
	}
	return out
}

// SortSessions sorts numerically on RX_MB/TX_MB and lexically on anything else.
func SortSessions(sessions []Session, key string, desc bool) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		var less bool
		switch key {
		case SortByRX:
			if a.RXMB == b.RXMB {
				return false
			}
			less = a.RXMB < b.RXMB
		case SortByTX:
			if a.TXMB == b.TXMB {
				return false
			}
			less = a.TXMB < b.TXMB
		default:
			av, bv := sessionField(a, key), sessionField(b, key)
			if av == bv {
				return false
			}
			less = av < bv
		}
		if desc {
			return !less
		}
		return less
	})
}

func sessionField(s Session, key string) string {
	if key == SortByInterface {
		return s.Interface
	}
	return asString(s.Row[key])
}

// FilterSessions keeps rows where any field, including the human totals,
// contains query case-insensitively.
func FilterSessions(sessions []Session, query string) []Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}
	var out []Session
	for _, s := range sessions {
		if sessionMatches(s, q) {
			out = append(out, s)
		}
	}
	return out
}

func sessionMatches(s Session, q string) bool {
	if strings.Contains(strings.ToLower(s.RXHuman), q) || strings.Contains(strings.ToLower(s.TXHuman), q) {
		return true
	}
	for _, v := range s.Row {
		if strings.Contains(strings.ToLower(asString(v)), q) {
			return true
		}
	}
	return false
}
