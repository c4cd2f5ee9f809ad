package ui

import (
	"fmt"
	"strings"

	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/normalize"
)

const (
	maxSessionRows = 10
	maxUsageRows   = 15
	maxPaymentRows = 15
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderBanner())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	updated := "never"
	if m.snapshot.LastUpdatedAt != nil {
		updated = m.snapshot.LastUpdatedAt.In(m.loc).Format("2006-01-02 15:04:05")
	}

	parts := []string{
		bg.Render("STARWATCH", styles.Logo),
		bg.Render("updated "+updated, styles.MutedText),
		bg.Render("theme "+m.theme.Name, styles.MutedText),
	}
	if m.snapshot.Loading() {
		parts = append(parts, bg.Render("loading", styles.InfoText))
	}
	if m.busy != "" {
		parts = append(parts, bg.Render(m.busy+"...", styles.WarningText))
	}
	return bg.FillLine(bg.Join(parts, "  "), m.width)
}

func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bindings := []struct{ key, desc string }{
		{m.keys.Retry.Help().Key, "retry"},
		{m.keys.RefreshAll.Help().Key, "refresh"},
		{m.keys.ToggleTheme.Help().Key, "theme"},
		{m.keys.Filter.Help().Key, "filter"},
		{m.keys.SortNext.Help().Key, "sort"},
		{m.keys.Logs.Help().Key, "logs"},
		{m.keys.Help.Help().Key, "help"},
		{m.keys.Quit.Help().Key, "quit"},
	}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		parts = append(parts, styles.AccentText.Render("<"+kb.key+">")+" "+styles.MutedText.Render(kb.desc))
	}
	return strings.Join(parts, "  ")
}

// renderBanner lists every endpoint whose latest attempt failed. Cached data
// for those endpoints stays on screen below it.
func (m Model) renderBanner() string {
	failed := m.snapshot.Failed()
	if len(failed) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(failed))
	for _, f := range failed {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", titleCase(string(f.Endpoint)), truncate(f.Message, 60)))
	}
	text := "Partial data: " + strings.Join(msgs, "; ") + " - press r to retry"
	return m.theme.Styles().Banner.Width(m.width).Render(text)
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.filtering {
		return m.filter.View()
	}
	if m.status != "" {
		if m.statusErr {
			return styles.DangerText.Render(m.status)
		}
		return styles.SuccessText.Render(m.status)
	}
	if m.query != "" {
		return styles.MutedText.Render("filter: " + m.query)
	}
	return ""
}

// renderSections renders the scrollable body.
func (m Model) renderSections() string {
	sections := []string{
		m.renderRouter(),
		m.renderInterface(),
		m.renderUsage(),
		m.renderPayments(),
	}
	return strings.Join(sections, "\n\n")
}

func (m Model) sectionTitle(ep model.Endpoint, title string) string {
	styles := m.theme.Styles()
	line := styles.AccentText.Bold(true).Render(title)
	st := m.snapshot.Status(ep)
	switch {
	case st.IsOffline():
		line += " " + styles.DangerText.Render(fmt.Sprintf("offline (%d failures)", st.ConsecutiveFailures))
	case st.Failed():
		line += " " + styles.WarningText.Render("stale")
	case st.Loading:
		line += " " + styles.InfoText.Render("loading")
	}
	return line
}

func (m Model) placeholder(ep model.Endpoint) string {
	styles := m.theme.Styles()
	if m.snapshot.Status(ep).Loading {
		return styles.FaintText.Render("  waiting for first data...")
	}
	return styles.FaintText.Render("  no data")
}

func (m Model) renderRouter() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(m.sectionTitle(model.RouterHealth, "Router"))
	b.WriteString("\n")
	r := m.snapshot.Router
	if r == nil {
		b.WriteString(m.placeholder(model.RouterHealth))
		return b.String()
	}
	fmt.Fprintf(&b, "  %s  %s %s  %s %s  %s %s",
		styles.Text.Bold(true).Render(r.Name),
		styles.MutedText.Render("CPU"), styles.Text.Render(r.CPUDisplay),
		styles.MutedText.Render("Memory"), styles.Text.Render(r.MemoryDisplay),
		styles.MutedText.Render("Uptime"), styles.Text.Render(r.UptimeDisplay))
	return b.String()
}

func (m Model) renderInterface() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(m.sectionTitle(model.InterfaceStats, "Interfaces"))
	b.WriteString("\n")
	iface := m.snapshot.Interface
	if iface == nil {
		b.WriteString(m.placeholder(model.InterfaceStats))
		return b.String()
	}

	fmt.Fprintf(&b, "  %s %s  %s %s\n",
		styles.MutedText.Render("Total RX"), styles.Text.Render(iface.Totals.RXHuman),
		styles.MutedText.Render("Total TX"), styles.Text.Render(iface.Totals.TXHuman))

	sessions := normalize.FilterSessions(normalize.Sessions(iface.Latest, m.loc), m.query)
	normalize.SortSessions(sessions, sortKeys[m.sortIdx], m.sortDesc)

	dir := "desc"
	if !m.sortDesc {
		dir = "asc"
	}
	b.WriteString(styles.FaintText.Render(fmt.Sprintf("  %s  %s  %s   sorted by %s %s",
		padRight("INTERFACE", 20), padLeft("RX", 12), padLeft("TX", 12), sortKeys[m.sortIdx], dir)))
	if len(sessions) == 0 {
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render("  no sessions"))
		return b.String()
	}
	for i, s := range sessions {
		if i == maxSessionRows {
			b.WriteString("\n")
			b.WriteString(styles.FaintText.Render(fmt.Sprintf("  ... %d more", len(sessions)-maxSessionRows)))
			break
		}
		b.WriteString("\n")
		b.WriteString(styles.Text.Render(fmt.Sprintf("  %s  %s  %s",
			padRight(truncate(s.Interface, 20), 20), padLeft(s.RXHuman, 12), padLeft(s.TXHuman, 12))))
	}
	return b.String()
}

func (m Model) renderUsage() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(m.sectionTitle(model.UserUsage, "Usage today"))
	b.WriteString("\n")
	usage := m.snapshot.Usage
	if usage == nil {
		b.WriteString(m.placeholder(model.UserUsage))
		return b.String()
	}
	rows := usage.Rows()
	if len(rows) == 0 {
		b.WriteString(styles.FaintText.Render("  no usage rows"))
		return b.String()
	}
	b.WriteString(styles.FaintText.Render(fmt.Sprintf("  %s  %s  %s", padRight("USER", 20), padLeft("RX", 12), padLeft("TX", 12))))
	for i, e := range rows {
		if i == maxUsageRows {
			b.WriteString("\n")
			b.WriteString(styles.FaintText.Render(fmt.Sprintf("  ... %d more", len(rows)-maxUsageRows)))
			break
		}
		b.WriteString("\n")
		b.WriteString(styles.Text.Render(fmt.Sprintf("  %s  %s  %s",
			padRight(truncate(e.User, 20), 20),
			padLeft(normalize.UsageRxDisplay(e), 12),
			padLeft(normalize.UsageTxDisplay(e), 12))))
	}
	return b.String()
}

func (m Model) renderPayments() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(m.sectionTitle(model.Payments, "Payments"))
	b.WriteString("\n")
	p := m.snapshot.Payments
	if p == nil {
		b.WriteString(m.placeholder(model.Payments))
		return b.String()
	}

	fmt.Fprintf(&b, "  %s %s  %s %s",
		styles.MutedText.Render("Today"), styles.SuccessText.Render(formatAmount(p.TotalToday)),
		styles.MutedText.Render("All time"), styles.Text.Render(formatAmount(p.TotalAllTime)))
	if p.Pending > 0 {
		b.WriteString("  ")
		b.WriteString(styles.WarningText.Render(fmt.Sprintf("%d pending", p.Pending)))
	}
	for i, pay := range p.MostRecentPerCounterparty {
		if i == maxPaymentRows {
			b.WriteString("\n")
			b.WriteString(styles.FaintText.Render(fmt.Sprintf("  ... %d more", len(p.MostRecentPerCounterparty)-maxPaymentRows)))
			break
		}
		b.WriteString("\n")
		b.WriteString(styles.Text.Render(fmt.Sprintf("  %s  %s  %s",
			padRight(truncate(counterpartyLabel(pay), 24), 24),
			padLeft(formatAmount(pay.Amount), 10),
			paymentWhen(pay))))
	}
	return b.String()
}

func counterpartyLabel(p model.Payment) string {
	switch {
	case p.Name != "" && p.Phone != "":
		return p.Name + " " + p.Phone
	default:
		return p.CounterpartyKey()
	}
}

func paymentWhen(p model.Payment) string {
	return strings.TrimSpace(p.Date + " " + p.Time)
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
