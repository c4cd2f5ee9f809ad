package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnknownCounterparty is the dedup key used when a payment has neither phone nor name.
const UnknownCounterparty = "Unknown"

// Payment is one canonical payment row.
type Payment struct {
	Name          string         `json:"name"`
	Phone         string         `json:"phone"`
	Amount        float64        `json:"amount"`
	Date          string         `json:"date"`
	Time          string         `json:"time"`
	TransactionID string         `json:"transactionId,omitempty"`
	Timestamp     *time.Time     `json:"timestamp,omitempty"`
	Month         string         `json:"month,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// CounterpartyKey returns phone, else name, else UnknownCounterparty.
func (p Payment) CounterpartyKey() string {
	if p.Phone != "" {
		return p.Phone
	}
	if p.Name != "" {
		return p.Name
	}
	return UnknownCounterparty
}

// PaymentMonth groups the payments of one counterparty for one month.
type PaymentMonth struct {
	Payments []Payment `json:"payments"`
}

// PaymentAggregate is the canonical record for the payments endpoint.
type PaymentAggregate struct {
	TotalAllTime              float64                            `json:"totalAllTime"`
	TotalToday                float64                            `json:"totalToday"`
	Pending                   int                                `json:"pending"`
	MostRecentPerCounterparty []Payment                          `json:"mostRecentPerCounterparty"`
	AllRecords                []Payment                          `json:"allRecords"`
	Grouped                   map[string]map[string]PaymentMonth `json:"groupedByCounterpartyAndMonth"`
	MonthlySummary            map[string]any                     `json:"monthlySummary"`
}

// UsageEntry is one per-user daily usage row.
type UsageEntry struct {
	User         string          `json:"user"`
	TotalRx      float64         `json:"totalRx"`
	TotalTx      float64         `json:"totalTx"`
	TotalRxHuman string          `json:"totalRxHuman,omitempty"`
	TotalTxHuman string          `json:"totalTxHuman,omitempty"`
	Last         json.RawMessage `json:"last,omitempty"`
	Samples      json.RawMessage `json:"samples,omitempty"`
	// Raw is the source row, including columns not modelled above.
	Raw          map[string]any  `json:"raw,omitempty"`
}

// UsageSummary is the canonical record for the user_usage endpoint.
type UsageSummary struct {
	Daily   []UsageEntry `json:"daily"`
	Summary []UsageEntry `json:"summary"`
}

// Rows returns Daily, or Summary when Daily is empty.
func (u UsageSummary) Rows() []UsageEntry {
	if len(u.Daily) > 0 {
		return u.Daily
	}
	return u.Summary
}

// InterfaceTotals always carries numeric megabytes and their human forms.
type InterfaceTotals struct {
	RXMB    float64 `json:"RX_MB"`
	TXMB    float64 `json:"TX_MB"`
	RXHuman string  `json:"RX_HUMAN"`
	TXHuman string  `json:"TX_HUMAN"`
}

// InterfaceSnapshot is the canonical record for the interface_stats endpoint.
type InterfaceSnapshot struct {
	Latest []map[string]any `json:"latest"`
	Totals InterfaceTotals  `json:"totals"`
}

// RouterHealthRecord is the canonical record for the router_health endpoint.
// Values are kept display-ready because the backend does not type them reliably.
type RouterHealthRecord struct {
	Name          string         `json:"name"`
	UptimeDisplay string         `json:"uptimeDisplay"`
	CPUDisplay    string         `json:"cpuDisplay"`
	MemoryDisplay string         `json:"memoryDisplay"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// DayUsage is one day of a counterparty window query.
type DayUsage struct {
	Date         string  `json:"date"`
	TotalRx      float64 `json:"totalRx"`
	TotalTx      float64 `json:"totalTx"`
	TotalRxHuman string  `json:"totalRxHuman"`
	TotalTxHuman string  `json:"totalTxHuman"`
	Failed       bool    `json:"failed,omitempty"`
}

// Record is the tagged result of normalizing one endpoint's payload.
// Exactly one of the pointer fields is set, matching Endpoint.
type Record struct {
	Endpoint  Endpoint
	Payments  *PaymentAggregate
	Usage     *UsageSummary
	Interface *InterfaceSnapshot
	Router    *RouterHealthRecord
}

// Value returns the populated canonical record for persistence.
func (r Record) Value() any {
	switch r.Endpoint {
	case Payments:
		return r.Payments
	case UserUsage:
		return r.Usage
	case InterfaceStats:
		return r.Interface
	case RouterHealth:
		return r.Router
	default:
		return nil
	}
}

// DecodeRecord restores a persisted canonical record for endpoint ep.
func DecodeRecord(ep Endpoint, data []byte) (Record, error) {
	rec := Record{Endpoint: ep}
	var err error
	switch ep {
	case Payments:
		rec.Payments = &PaymentAggregate{}
		err = json.Unmarshal(data, rec.Payments)
	case UserUsage:
		rec.Usage = &UsageSummary{}
		err = json.Unmarshal(data, rec.Usage)
	case InterfaceStats:
		rec.Interface = &InterfaceSnapshot{}
		err = json.Unmarshal(data, rec.Interface)
	case RouterHealth:
		rec.Router = &RouterHealthRecord{}
		err = json.Unmarshal(data, rec.Router)
	default:
		return Record{}, fmt.Errorf("unknown endpoint %q", ep)
	}
	if err != nil {
		return Record{}, fmt.Errorf("decode %s record: %w", ep, err)
	}
	return rec, nil
}
