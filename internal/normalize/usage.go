package normalize

import (
	"encoding/json"

	"github.com/starnet/starwatch/internal/model"
)

// Usage passes daily and summary rows through, defaulting absent arrays to empty.
func (n Normalizer) Usage(raw []byte) model.UsageSummary {
	v, _ := decodeLoose(raw)
	return usageFrom(v)
}

func usageFrom(v any) model.UsageSummary {
	m := asMap(v)
	return model.UsageSummary{
		Daily:   usageEntries(m["daily"]),
		Summary: usageEntries(m["summary"]),
	}
}

func usageEntries(v any) []model.UsageEntry {
	rows := asMaps(v)
	out := make([]model.UsageEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.UsageEntry{
			User:         asString(r["user"]),
			TotalRx:      asFloat(r["totalRx"]),
			TotalTx:      asFloat(r["totalTx"]),
			TotalRxHuman: asString(r["totalRxHuman"]),
			TotalTxHuman: asString(r["totalTxHuman"]),
			Last:         rawJSON(r["last"]),
			Samples:      rawJSON(r["samples"]),
			Raw:          r,
		})
	}
	return out
}

func rawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// UsageRxDisplay prefers the backend's human total, then the last sample's RX_MB.
func UsageRxDisplay(e model.UsageEntry) string {
	return usageDisplay(e.TotalRxHuman, e.Last, "RX_MB")
}

// UsageTxDisplay prefers the backend's human total, then the last sample's TX_MB.
func UsageTxDisplay(e model.UsageEntry) string {
	return usageDisplay(e.TotalTxHuman, e.Last, "TX_MB")
}

func usageDisplay(human string, last json.RawMessage, field string) string {
	if human != "" {
		return human
	}
	if v, ok := decodeLoose(last); ok {
		if mb := asFloat(asMap(v)[field]); mb != 0 {
			return FormatMB(mb)
		}
	}
	return "—"
}

// findUsage returns the daily row for user, if any.
func findUsage(summary model.UsageSummary, user string) (model.UsageEntry, bool) {
	for _, e := range summary.Daily {
		if e.User == user {
			return e, true
		}
	}
	return model.UsageEntry{}, false
}

// DayUsageFor extracts one user's totals from a usage response for date.
// Users absent from the day's rows get a zero-filled record.
func DayUsageFor(summary model.UsageSummary, user, date string) model.DayUsage {
	day := ZeroDayUsage(date)
	if e, ok := findUsage(summary, user); ok {
		day.TotalRx = e.TotalRx
		day.TotalTx = e.TotalTx
		day.TotalRxHuman = e.TotalRxHuman
		if day.TotalRxHuman == "" {
			day.TotalRxHuman = FormatMB(e.TotalRx)
		}
		day.TotalTxHuman = e.TotalTxHuman
		if day.TotalTxHuman == "" {
			day.TotalTxHuman = FormatMB(e.TotalTx)
		}
	}
	return day
}

// ZeroDayUsage is the placeholder for a day with no data.
func ZeroDayUsage(date string) model.DayUsage {
	return model.DayUsage{
		Date:         date,
		TotalRxHuman: FormatMB(0),
		TotalTxHuman: FormatMB(0),
	}
}
