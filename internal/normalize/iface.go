package normalize

import (
	"github.com/starnet/starwatch/internal/model"
)

// Interface normalizes interface_stats. Totals accept RX_MB, RX or rx (first
// present wins) and human strings are synthesized when the backend omits them.
func (n Normalizer) Interface(raw []byte) model.InterfaceSnapshot {
	v, _ := decodeLoose(raw)
	return interfaceFrom(v)
}

func interfaceFrom(v any) model.InterfaceSnapshot {
	m := asMap(v)
	return model.InterfaceSnapshot{
		Latest: asMaps(m["latest"]),
		Totals: interfaceTotals(asMap(m["totals"])),
	}
}

func interfaceTotals(t map[string]any) model.InterfaceTotals {
	rx := asFloat(first(t, "RX_MB", "RX", "rx"))
	tx := asFloat(first(t, "TX_MB", "TX", "tx"))

	totals := model.InterfaceTotals{
		RXMB:    rx,
		TXMB:    tx,
		RXHuman: asString(t["RX_HUMAN"]),
		TXHuman: asString(t["TX_HUMAN"]),
	}
	if totals.RXHuman == "" {
		totals.RXHuman = FormatMB(rx)
	}
	if totals.TXHuman == "" {
		totals.TXHuman = FormatMB(tx)
	}
	return totals
}
