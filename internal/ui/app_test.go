package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
)

type fakeController struct {
	mu       sync.Mutex
	snap     state.Snapshot
	theme    string
	retries  int
	refresh  int
	cleared  int
	clearErr error
}

func (f *fakeController) CurrentSnapshot() state.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) RetryFailedEndpoints(context.Context) map[model.Endpoint]syncer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	return map[model.Endpoint]syncer.Outcome{model.UserUsage: syncer.Failed}
}

func (f *fakeController) RefreshAll(context.Context) map[model.Endpoint]syncer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return map[model.Endpoint]syncer.Outcome{model.Payments: syncer.Applied, model.RouterHealth: syncer.Applied}
}

func (f *fakeController) Theme() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.theme
}

func (f *fakeController) ToggleTheme(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.theme == model.ThemeDark {
		f.theme = model.ThemeLight
	} else {
		f.theme = model.ThemeDark
	}
	return f.theme, nil
}

func (f *fakeController) ClearCache(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.clearErr
}

func sampleSnapshot() state.Snapshot {
	s := state.NewStore()
	at := time.Date(2025, time.August, 8, 9, 30, 0, 0, time.UTC)
	s.Apply(model.Record{Endpoint: model.RouterHealth, Router: &model.RouterHealthRecord{
		Name: "edge-1", CPUDisplay: "24%", MemoryDisplay: "2.00 GB", UptimeDisplay: "1d 1h 1m",
	}}, at)
	s.Apply(model.Record{Endpoint: model.InterfaceStats, Interface: &model.InterfaceSnapshot{
		Latest: []map[string]any{
			{"Interface": "ether1", "RX_MB": 10.0, "TX_MB": 1.0},
			{"Interface": "wlan0", "RX_MB": 500.0, "TX_MB": 2.0},
		},
		Totals: model.InterfaceTotals{RXMB: 510, TXMB: 3, RXHuman: "510.00 MB", TXHuman: "3.00 MB"},
	}}, at)
	s.Apply(model.Record{Endpoint: model.Payments, Payments: &model.PaymentAggregate{
		TotalAllTime: 150, TotalToday: 50,
		MostRecentPerCounterparty: []model.Payment{{Name: "Alice", Phone: "0700", Amount: 50, Date: "2025-08-08", Time: "09:00"}},
	}}, at)
	s.RecordFailure(model.UserUsage, "HTTP 503 Service Unavailable")
	return s.Snapshot()
}

func newTestModel(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	m := New(Options{Controller: ctrl, Location: time.UTC})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 200})
	return updated.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestView_RendersSectionsAndBanner(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot()}
	m := newTestModel(t, ctrl)

	view := m.View()
	for _, want := range []string{
		"STARWATCH",
		"updated 2025-08-08 09:30:00",
		"theme light",
		"Partial data: User Usage (HTTP 503 Service Unavailable)",
		"edge-1",
		"24%",
		"1d 1h 1m",
		"510.00 MB",
		"ether1",
		"Alice 0700",
		"50.00",
		"150.00",
		"stale",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Index(view, "wlan0") > strings.Index(view, "ether1") {
		t.Fatalf("sessions should sort by RX descending:\n%s", view)
	}
}

func TestView_LoadingPlaceholders(t *testing.T) {
	m := newTestModel(t, &fakeController{snap: state.NewStore().Snapshot()})

	view := m.View()
	if !strings.Contains(view, "updated never") {
		t.Fatalf("view missing never-updated header:\n%s", view)
	}
	if strings.Count(view, "waiting for first data") != 4 {
		t.Fatalf("expected four loading placeholders:\n%s", view)
	}
	if strings.Contains(view, "Partial data") {
		t.Fatalf("banner shown with no failures:\n%s", view)
	}
}

func TestKeys_RetryRunsAsCommand(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot()}
	m := newTestModel(t, ctrl)

	updated, cmd := m.Update(runes("r"))
	m = updated.(Model)
	if cmd == nil || m.busy == "" {
		t.Fatalf("retry did not start: busy=%q", m.busy)
	}
	if _, again := m.Update(runes("R")); again != nil {
		t.Fatal("second action started while busy")
	}

	msg := cmd()
	updated, _ = m.Update(msg)
	m = updated.(Model)
	if ctrl.retries != 1 {
		t.Fatalf("retries = %d, want 1", ctrl.retries)
	}
	if m.busy != "" || !m.statusErr || !strings.Contains(m.status, "still failing user_usage") {
		t.Fatalf("status = %q err=%v busy=%q", m.status, m.statusErr, m.busy)
	}
}

func TestKeys_RefreshAndClearCache(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot()}
	m := newTestModel(t, ctrl)

	updated, cmd := m.Update(runes("R"))
	updated, _ = updated.(Model).Update(cmd())
	m = updated.(Model)
	if ctrl.refresh != 1 || m.statusErr || m.status != "refresh: 2 endpoint(s) ok" {
		t.Fatalf("refresh=%d status=%q", ctrl.refresh, m.status)
	}

	ctrl.clearErr = errors.New("disk full")
	updated, cmd = m.Update(runes("X"))
	updated, _ = updated.(Model).Update(cmd())
	m = updated.(Model)
	if ctrl.cleared != 1 || ctrl.refresh != 1 {
		t.Fatalf("cleared=%d refresh=%d", ctrl.cleared, ctrl.refresh)
	}
	if !m.statusErr || !strings.Contains(m.status, "disk full") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestKeys_ToggleTheme(t *testing.T) {
	ctrl := &fakeController{theme: model.ThemeLight}
	m := newTestModel(t, ctrl)
	if m.theme.Name != model.ThemeLight {
		t.Fatalf("initial theme = %q", m.theme.Name)
	}

	_, cmd := m.Update(runes("T"))
	if cmd == nil {
		t.Fatal("theme toggle returned no command")
	}
	updated, _ := m.Update(cmd())
	m = updated.(Model)
	if m.theme.Name != model.ThemeDark {
		t.Fatalf("theme = %q, want dark", m.theme.Name)
	}
}

func TestKeys_FilterSessions(t *testing.T) {
	m := newTestModel(t, &fakeController{snap: sampleSnapshot()})

	updated, _ := m.Update(runes("/"))
	m = updated.(Model)
	if !m.filtering {
		t.Fatal("filter mode not entered")
	}
	for _, r := range "wlan" {
		updated, _ = m.Update(runes(string(r)))
		m = updated.(Model)
	}
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if m.filtering || m.query != "wlan" {
		t.Fatalf("filtering=%v query=%q", m.filtering, m.query)
	}
	view := m.View()
	if !strings.Contains(view, "wlan0") || strings.Contains(view, "ether1") {
		t.Fatalf("filter not applied:\n%s", view)
	}
}

func TestKeys_SortCycle(t *testing.T) {
	m := newTestModel(t, &fakeController{snap: sampleSnapshot()})

	updated, _ := m.Update(runes("s"))
	updated, _ = updated.(Model).Update(runes("s"))
	updated, _ = updated.(Model).Update(runes("S"))
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "sorted by Interface asc") {
		t.Fatalf("sort header wrong:\n%s", view)
	}
	if strings.Index(view, "ether1") > strings.Index(view, "wlan0") {
		t.Fatalf("sessions should sort by interface ascending:\n%s", view)
	}
}

func TestKeys_Quit(t *testing.T) {
	m := newTestModel(t, &fakeController{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c did not quit")
	}
}

func TestHelpOverlay(t *testing.T) {
	m := newTestModel(t, &fakeController{})
	updated, _ := m.Update(runes("?"))
	m = updated.(Model)
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatal("help overlay not shown")
	}
	updated, _ = m.Update(runes("x"))
	if updated.(Model).showHelp {
		t.Fatal("any key should close help")
	}
}

func TestKeys_LogView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starwatch.log")
	lines := `{"level":"warn","component":"syncer","error":"HTTP 503","message":"fetch failed"}` + "\n" + "plain text line\n"
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := New(Options{Controller: &fakeController{snap: sampleSnapshot()}, Location: time.UTC, LogPath: path})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 60})
	m = updated.(Model)

	updated, cmd := m.Update(runes("l"))
	m = updated.(Model)
	if !m.showLogs || cmd == nil {
		t.Fatalf("log view not opened: showLogs=%v", m.showLogs)
	}
	updated, _ = m.Update(cmd())
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"WARN", "syncer", "fetch failed: HTTP 503", "plain text line"} {
		if !strings.Contains(view, want) {
			t.Fatalf("log view missing %q:\n%s", want, view)
		}
	}

	updated, _ = m.Update(runes("l"))
	m = updated.(Model)
	if m.showLogs || !strings.Contains(m.View(), "edge-1") {
		t.Fatal("log view did not close")
	}
}

func TestKeys_LogViewWithoutFile(t *testing.T) {
	m := newTestModel(t, &fakeController{})
	updated, cmd := m.Update(runes("l"))
	m = updated.(Model)
	if m.showLogs || cmd != nil || !m.statusErr {
		t.Fatalf("log view should be unavailable: showLogs=%v status=%q", m.showLogs, m.status)
	}
}
