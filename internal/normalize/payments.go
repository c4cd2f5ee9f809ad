package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/starnet/starwatch/internal/model"
)

type paymentsShape int

const (
	paymentsEmpty paymentsShape = iota
	paymentsLegacy
	paymentsGrouped
)

// paymentsPayload is the tagged decode of a payments response.
type paymentsPayload struct {
	shape          paymentsShape
	rows           []map[string]any
	grouped        map[string]any
	monthlySummary map[string]any
}

// decodePayments picks the payload shape: grouped objects first, then a bare
// row array or {data: [...]}, else empty.
func decodePayments(v any) paymentsPayload {
	payload := v
	if m := asMap(v); m != nil && truthy(m["data"]) {
		payload = m["data"]
	}

	if m := asMap(payload); m != nil {
		if truthy(m["userPaymentsByMonth"]) || truthy(m["monthlySummary"]) {
			return paymentsPayload{
				shape:          paymentsGrouped,
				grouped:        asMap(m["userPaymentsByMonth"]),
				monthlySummary: asMap(m["monthlySummary"]),
			}
		}
	}

	var rows []map[string]any
	switch t := payload.(type) {
	case []any:
		rows = asMaps(t)
	case map[string]any:
		rows = asMaps(t["data"])
	}
	if len(rows) == 0 {
		return paymentsPayload{shape: paymentsEmpty}
	}
	return paymentsPayload{shape: paymentsLegacy, rows: rows}
}

// Payments normalizes any known payments shape. It never fails; malformed
// input yields an empty aggregate.
func (n Normalizer) Payments(raw []byte) model.PaymentAggregate {
	v, _ := decodeLoose(raw)
	return n.paymentsFrom(v)
}

func (n Normalizer) paymentsFrom(v any) model.PaymentAggregate {
	now := n.now()
	loc := now.Location()

	payload := decodePayments(v)
	switch payload.shape {
	case paymentsGrouped:
		flat := flattenGrouped(payload.grouped, loc)
		agg := aggregate(flat, now)
		if payload.monthlySummary != nil {
			agg.MonthlySummary = payload.monthlySummary
		}
		return agg
	case paymentsLegacy:
		flat, pending := legacyRows(payload.rows, loc)
		agg := aggregate(flat, now)
		agg.Pending = pending
		return agg
	default:
		return emptyPayments()
	}
}

func emptyPayments() model.PaymentAggregate {
	return model.PaymentAggregate{
		MostRecentPerCounterparty: []model.Payment{},
		AllRecords:                []model.Payment{},
		Grouped:                   map[string]map[string]model.PaymentMonth{},
		MonthlySummary:            map[string]any{},
	}
}

func flattenGrouped(grouped map[string]any, loc *time.Location) []model.Payment {
	var flat []model.Payment
	for _, groupKey := range sortedKeys(grouped) {
		months := asMap(grouped[groupKey])
		for _, monthKey := range sortedKeys(months) {
			group := asMap(months[monthKey])
			for _, p := range asMaps(group["payments"]) {
				date := monthKey
				if v := first(p, "date", "DATE"); v != nil {
					date = asString(v)
				}
				clock := asString(first(p, "time", "TIME"))

				phone := strings.TrimSpace(asString(firstTruthy(p, "phone", "PHONE")))
				if phone == "" {
					phone = groupKey
				}

				flat = append(flat, model.Payment{
					Name:          strings.TrimSpace(asString(firstTruthy(p, "name", "NAME"))),
					Phone:         phone,
					Amount:        amountOf(first(p, "amount", "AMOUNT")),
					Date:          date,
					Time:          clock,
					TransactionID: asString(first(p, "txnId", "TXNID", "transactionId", "TRANSACTION_ID")),
					Timestamp:     resolveTimestamp(date, clock, loc),
					Month:         monthKey,
				})
			}
		}
	}
	return flat
}

func legacyRows(rows []map[string]any, loc *time.Location) ([]model.Payment, int) {
	flat := make([]model.Payment, 0, len(rows))
	pending := 0
	for _, r := range rows {
		if balance := first(r, "BALANCE", "balance"); balance == nil || asString(balance) == "" {
			pending++
		}

		date := asString(first(r, "DATE", "date"))
		clock := asString(first(r, "TIME", "time"))
		ts := resolveTimestamp(date, clock, loc)
		if ts == nil {
			if t, ok := ParseTimestamp(asString(first(r, "TIMESTAMP", "timestamp")), loc); ok {
				ts = &t
			}
		}

		phone := strings.TrimSpace(asString(firstTruthy(r, "PHONE", "phone")))
		name := strings.TrimSpace(asString(firstTruthy(r, "NAME", "name")))
		if name == "" {
			name = phone
		}
		if name == "" {
			name = model.UnknownCounterparty
		}

		p := model.Payment{
			Name:          name,
			Phone:         phone,
			Amount:        amountOf(first(r, "AMOUNT", "amount")),
			Date:          date,
			Time:          clock,
			TransactionID: asString(first(r, "TXNID", "txnId", "TRANSACTION_ID", "transactionId")),
			Timestamp:     ts,
			Raw:           r,
		}
		if ts != nil {
			p.Month = ts.In(loc).Format("2006-01")
		}
		flat = append(flat, p)
	}
	return flat, pending
}

// aggregate derives totals, the per-counterparty latest list and grouping.
func aggregate(flat []model.Payment, now time.Time) model.PaymentAggregate {
	agg := emptyPayments()
	loc := now.Location()

	latest := make(map[string]int)
	var order []string

	for _, p := range flat {
		agg.TotalAllTime += p.Amount
		if p.Timestamp != nil && sameLocalDate(*p.Timestamp, now, loc) {
			agg.TotalToday += p.Amount
		}

		key := p.CounterpartyKey()
		if idx, ok := latest[key]; !ok {
			latest[key] = len(order)
			order = append(order, key)
			agg.MostRecentPerCounterparty = append(agg.MostRecentPerCounterparty, p)
		} else if tsAfter(p.Timestamp, agg.MostRecentPerCounterparty[idx].Timestamp) {
			agg.MostRecentPerCounterparty[idx] = p
		}

		month := p.Month
		if month == "" {
			month = "unknown"
		}
		byMonth, ok := agg.Grouped[key]
		if !ok {
			byMonth = map[string]model.PaymentMonth{}
			agg.Grouped[key] = byMonth
		}
		group := byMonth[month]
		group.Payments = append(group.Payments, p)
		byMonth[month] = group
	}

	sortNewestFirst(agg.MostRecentPerCounterparty)
	agg.AllRecords = append(agg.AllRecords, flat...)
	return agg
}

// tsAfter reports whether a is strictly later than b; unresolved counts as the epoch.
func tsAfter(a, b *time.Time) bool {
	return unixMilli(a) > unixMilli(b)
}

func unixMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// sortNewestFirst orders resolved timestamps descending, unresolved last,
// preserving arrival order among equals.
func sortNewestFirst(payments []model.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i].Timestamp, payments[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func amountOf(v any) float64 {
	f := asFloat(v)
	if f < 0 {
		return 0
	}
	return f
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CounterpartyPayments returns every payment of one counterparty, newest first.
func CounterpartyPayments(agg model.PaymentAggregate, key string) []model.Payment {
	out := []model.Payment{}
	for _, p := range agg.AllRecords {
		if p.CounterpartyKey() == key {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out
}
