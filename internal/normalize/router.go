package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/starnet/starwatch/internal/model"
)

const missingValue = "—"

var (
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	dateTimeSep = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}[T ]\d`)
)

// Router normalizes router_health into display strings.
func (n Normalizer) Router(raw []byte) model.RouterHealthRecord {
	v, _ := decodeLoose(raw)
	return routerFrom(v, n.now())
}

func routerFrom(v any, now time.Time) model.RouterHealthRecord {
	src, fromRow := routerSource(v)

	uptime := first(src, "uptime", "Uptime", "uptimeSeconds", "uptime_secs")
	if fromRow {
		uptime = firstTruthy(src, "Uptime", "uptime", "uptimeSeconds", "uptime_secs", "Timestamp")
	}

	name := asString(firstTruthy(src, "name", "router"))
	if name == "" {
		name = "Router"
	}

	return model.RouterHealthRecord{
		Name:          name,
		UptimeDisplay: uptimeDisplay(uptime, now),
		CPUDisplay:    cpuDisplay(first(src, "cpu", "CPU", "cpuPct")),
		MemoryDisplay: memoryDisplay(first(src, "memory", "Memory", "mem")),
		Raw:           src,
	}
}

// routerSource unwraps {data: {...}}, {data: [rows]} (first row) or a bare
// object. fromRow reports the row form, which also accepts Timestamp as uptime.
func routerSource(v any) (map[string]any, bool) {
	if rows := asMaps(v); len(rows) > 0 {
		return rows[0], true
	}
	m := asMap(v)
	if m == nil {
		return map[string]any{}, false
	}
	switch data := m["data"].(type) {
	case map[string]any:
		return data, false
	case []any:
		if rows := asMaps(data); len(rows) > 0 {
			return rows[0], true
		}
	}
	return m, false
}

func cpuDisplay(v any) string {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return missingValue
	}
	if strings.Contains(s, "%") {
		return s
	}
	if f, ok := parseNumber(s); ok {
		return formatPlainNumber(f) + "%"
	}
	return s
}

func memoryDisplay(v any) string {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return missingValue
	}
	if strings.Contains(s, "%") {
		return s
	}
	f, ok := parseNumber(s)
	if !ok {
		return s
	}
	if f <= 100 {
		return formatPlainNumber(f) + "%"
	}
	return FormatBytes(f)
}

func uptimeDisplay(v any, now time.Time) string {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return FormatUptime(int64(math.Floor(f)))
		}
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return missingValue
	}
	if digitsOnly.MatchString(s) {
		f, _ := parseNumber(s)
		return FormatUptime(int64(f))
	}
	if strings.Contains(s, "T") || dateTimeSep.MatchString(s) {
		started, ok := ParseTimestamp(s, now.Location())
		if !ok {
			return s
		}
		elapsed := int64(now.Sub(started) / time.Second)
		if elapsed <= 0 {
			return s
		}
		return FormatUptime(elapsed)
	}
	return s
}
