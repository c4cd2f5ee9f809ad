package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starnet/starwatch/internal/logtail"
	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/normalize"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
)

// Controller is the part of the dashboard controller the UI drives.
type Controller interface {
	CurrentSnapshot() state.Snapshot
	RetryFailedEndpoints(ctx context.Context) map[model.Endpoint]syncer.Outcome
	RefreshAll(ctx context.Context) map[model.Endpoint]syncer.Outcome
	Theme() string
	ToggleTheme(ctx context.Context) (string, error)
	ClearCache(ctx context.Context) error
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller Controller
	PollTick   time.Duration
	Location   *time.Location
	// LogPath enables the log view. Empty when logs go to stderr.
	LogPath string
}

const (
	defaultPollTick = time.Second
	maxLogLines     = 500
)

var sortKeys = []string{normalize.SortByRX, normalize.SortByTX, normalize.SortByInterface}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx      context.Context
	ctrl     Controller
	pollTick time.Duration
	loc      *time.Location
	logPath  string
	keys     keyMap

	// UI state
	theme    Theme
	width    int
	height   int
	ready    bool
	showHelp bool
	showLogs bool
	viewport viewport.Model

	// Data state
	snapshot state.Snapshot
	logs     []logtail.Entry
	logErr   error

	// Sessions
	filtering bool
	filter    textinput.Model
	query     string
	sortIdx   int
	sortDesc  bool

	// Actions
	busy      string
	status    string
	statusErr bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = defaultPollTick
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	filter := textinput.New()
	filter.Placeholder = "interface, size..."
	filter.Prompt = "/"
	filter.CharLimit = 64

	m := Model{
		ctx:      ctx,
		ctrl:     opts.Controller,
		pollTick: pollTick,
		loc:      loc,
		logPath:  opts.LogPath,
		keys:     defaultKeyMap(),
		theme:    GetTheme(""),
		filter:   filter,
		sortDesc: true,
	}
	if m.ctrl != nil {
		m.theme = GetTheme(m.ctrl.Theme())
		m.snapshot = m.ctrl.CurrentSnapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.ctrl != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.ctrl))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.contentHeight())
		}
		m.ready = true
		m.viewport.Width = msg.Width
		m.viewport.Height = m.contentHeight()
		m.refreshContent()
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.pollTick)}
		if m.ctrl != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.ctrl))
		}
		if m.showLogs {
			cmds = append(cmds, readLogsCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case logsMsg:
		m.logs, m.logErr = msg.entries, msg.err
		if m.showLogs {
			m.refreshContent()
			m.viewport.GotoBottom()
		}
		return m, nil

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.refreshContent()
		return m, nil

	case actionMsg:
		m.busy = ""
		m.status, m.statusErr = msg.summary()
		if m.ctrl != nil {
			m.snapshot = m.ctrl.CurrentSnapshot()
		}
		m.refreshContent()
		return m, nil

	case themeMsg:
		m.theme = GetTheme(msg.theme)
		if msg.err != nil {
			m.status, m.statusErr = msg.err.Error(), true
		}
		m.refreshContent()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Logs):
		if m.logPath == "" {
			m.status, m.statusErr = "log view unavailable: logging to stderr", true
			return m, nil
		}
		m.showLogs = !m.showLogs
		m.refreshContent()
		if m.showLogs {
			return m, readLogsCmd(m.logPath)
		}
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.ToggleTheme):
		if m.ctrl == nil {
			return m, nil
		}
		return m, toggleThemeCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Retry):
		return m.startAction("Retrying failed endpoints", func(ctx context.Context, c Controller) actionMsg {
			return actionMsg{label: "retry", outcomes: c.RetryFailedEndpoints(ctx)}
		})

	case key.Matches(msg, m.keys.RefreshAll):
		return m.startAction("Refreshing", func(ctx context.Context, c Controller) actionMsg {
			return actionMsg{label: "refresh", outcomes: c.RefreshAll(ctx)}
		})

	case key.Matches(msg, m.keys.ClearCache):
		return m.startAction("Clearing cache", func(ctx context.Context, c Controller) actionMsg {
			if err := c.ClearCache(ctx); err != nil {
				return actionMsg{label: "clear cache", err: err}
			}
			return actionMsg{label: "reload", outcomes: c.RefreshAll(ctx)}
		})

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.SetValue(m.query)
		return m, m.filter.Focus()

	case key.Matches(msg, m.keys.SortNext):
		m.sortIdx = (m.sortIdx + 1) % len(sortKeys)
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keys.SortDir):
		m.sortDesc = !m.sortDesc
		m.refreshContent()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.query = strings.TrimSpace(m.filter.Value())
		m.filtering = false
		m.filter.Blur()
		m.refreshContent()
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

// startAction runs fn off the update loop. Only one action runs at a time.
func (m Model) startAction(label string, fn func(context.Context, Controller) actionMsg) (tea.Model, tea.Cmd) {
	if m.ctrl == nil || m.busy != "" {
		return m, nil
	}
	m.busy = label
	m.status = ""
	ctx, ctrl := m.ctx, m.ctrl
	return m, func() tea.Msg { return fn(ctx, ctrl) }
}

func (m Model) contentHeight() int {
	// header, command bar, banner, footer
	h := m.height - 4
	if h < 1 {
		return 1
	}
	return h
}

func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	if m.showLogs {
		m.viewport.SetContent(m.renderLogs())
		return
	}
	m.viewport.SetContent(m.renderSections())
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type actionMsg struct {
	label    string
	outcomes map[model.Endpoint]syncer.Outcome
	err      error
}

func (a actionMsg) summary() (string, bool) {
	if a.err != nil {
		return fmt.Sprintf("%s failed: %v", a.label, a.err), true
	}
	if len(a.outcomes) == 0 {
		return fmt.Sprintf("%s: nothing to do", a.label), false
	}
	var failed []string
	for ep, out := range a.outcomes {
		if out == syncer.Failed {
			failed = append(failed, string(ep))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Sprintf("%s: still failing %s", a.label, strings.Join(failed, ", ")), true
	}
	return fmt.Sprintf("%s: %d endpoint(s) ok", a.label, len(a.outcomes)), false
}

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

type themeMsg struct {
	theme string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(ctrl.CurrentSnapshot())
	}
}

func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := logtail.Read(path, maxLogLines)
		return logsMsg{entries: entries, err: err}
	}
}

func toggleThemeCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		theme, err := ctrl.ToggleTheme(ctx)
		return themeMsg{theme: theme, err: err}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(opts Options) error {
	if opts.Controller == nil {
		return fmt.Errorf("ui requires a controller")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
