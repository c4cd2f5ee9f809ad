package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatMB renders a megabyte quantity: GB above 1024, MB above 1, KB otherwise.
// Zero renders as "0 MB".
func FormatMB(mb float64) string {
	if math.IsNaN(mb) || math.IsInf(mb, 0) || mb == 0 {
		return "0 MB"
	}
	switch {
	case mb > 1024:
		return fmt.Sprintf("%.2f GB", mb/1024)
	case mb > 1:
		return fmt.Sprintf("%.2f MB", mb)
	default:
		return fmt.Sprintf("%d KB", int64(math.Floor(mb*1024+0.5)))
	}
}

// FormatBytes renders a raw byte count in the largest unit keeping the value >= 1.
func FormatBytes(n float64) string {
	const (
		kb = 1024.0
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", n/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", n/mb)
	case n >= kb:
		return fmt.Sprintf("%.0f KB", n/kb)
	default:
		return strconv.FormatFloat(n, 'f', -1, 64) + " B"
	}
}

// FormatUptime renders whole seconds as "1d 2h 3m". Seconds only appear when
// every larger unit is zero.
func FormatUptime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

func formatPlainNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
