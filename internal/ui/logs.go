package ui

import (
	"strings"

	"github.com/starnet/starwatch/internal/logtail"
)

// renderLogs renders the tail of the log file in place of the sections.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Log"))
	b.WriteString(" ")
	b.WriteString(styles.FaintText.Render(m.logPath))
	b.WriteString("\n")

	if m.logErr != nil {
		b.WriteString(styles.DangerText.Render("  " + m.logErr.Error()))
		return b.String()
	}
	if len(m.logs) == 0 {
		b.WriteString(styles.FaintText.Render("  log is empty"))
		return b.String()
	}
	for i, e := range m.logs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderLogEntry(e))
	}
	return b.String()
}

func (m Model) renderLogEntry(e logtail.Entry) string {
	styles := m.theme.Styles()
	if e.Raw != "" {
		return styles.FaintText.Render(truncate(e.Raw, m.width))
	}

	ts := "        "
	if !e.Time.IsZero() {
		ts = e.Time.In(m.loc).Format("15:04:05")
	}
	level := strings.ToUpper(padRight(e.Level, 5))
	levelStyle := styles.MutedText
	switch e.Level {
	case "warn":
		levelStyle = styles.WarningText
	case "error", "fatal", "panic":
		levelStyle = styles.DangerText
	case "info":
		levelStyle = styles.InfoText
	}

	parts := []string{styles.FaintText.Render(ts), levelStyle.Render(level)}
	if e.Component != "" {
		parts = append(parts, styles.AccentText.Render(e.Component))
	}
	msg := e.Message
	if e.Error != "" {
		msg += ": " + e.Error
	}
	parts = append(parts, styles.Text.Render(msg))
	return strings.Join(parts, " ")
}
