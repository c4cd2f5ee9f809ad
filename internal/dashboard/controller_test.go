package dashboard

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starnet/starwatch/internal/cachestore"
	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/sheets"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
)

var testNow = time.Date(2025, time.August, 8, 12, 0, 0, 0, time.UTC)

type backend struct {
	mu      sync.Mutex
	fetch   func(ep model.Endpoint, params url.Values) sheets.Result
	post    func(ep model.Endpoint, row map[string]any) error
	fetches []url.Values
	posts   int
}

func (b *backend) Fetch(_ context.Context, ep model.Endpoint, params url.Values) sheets.Result {
	b.mu.Lock()
	b.fetches = append(b.fetches, params)
	fn := b.fetch
	b.mu.Unlock()
	return fn(ep, params)
}

func (b *backend) PostRow(_ context.Context, ep model.Endpoint, row map[string]any) error {
	b.mu.Lock()
	b.posts++
	fn := b.post
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ep, row)
}

func (b *backend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fetches)
}

type harness struct {
	ctrl    *Controller
	store   *state.Store
	cache   *cachestore.Store
	backend *backend
}

func newHarness(t *testing.T, b *backend) harness {
	t.Helper()
	cache, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	clock := func() time.Time { return testNow }
	store := state.NewStore()
	engine := syncer.New(b, store, cache, syncer.Options{Clock: clock, Logger: zerolog.Nop()})
	ctrl := New(store, engine, b, cache, Options{Clock: clock, Location: time.UTC, Logger: zerolog.Nop()})
	return harness{ctrl: ctrl, store: store, cache: cache, backend: b}
}

func ok(body string) sheets.Result {
	return sheets.Result{Status: sheets.StatusOK, Body: []byte(body)}
}

func TestQueryCounterpartyWindow_ZeroFillsFailedDays(t *testing.T) {
	failing := map[string]bool{"2025-08-07": true, "2025-08-05": true, "2025-08-02": true}
	b := &backend{fetch: func(_ model.Endpoint, params url.Values) sheets.Result {
		date := params.Get("date")
		if failing[date] {
			return sheets.Result{Status: sheets.StatusFailed, Err: errors.New("HTTP 500")}
		}
		return ok(`{"daily": [{"user": "alice", "totalRx": 3, "totalTx": 1, "totalRxHuman": "3.00 MB"}, {"user": "bob", "totalRx": 9}]}`)
	}}
	h := newHarness(t, b)

	window := h.ctrl.QueryCounterpartyWindow(context.Background(), "alice", 7)
	require.Len(t, window, 7)

	wantDates := []string{"2025-08-08", "2025-08-07", "2025-08-06", "2025-08-05", "2025-08-04", "2025-08-03", "2025-08-02"}
	failedDays := 0
	for i, day := range window {
		assert.Equal(t, wantDates[i], day.Date)
		if failing[day.Date] {
			failedDays++
			assert.True(t, day.Failed)
			assert.Zero(t, day.TotalRx)
			assert.Equal(t, "0 MB", day.TotalRxHuman)
			continue
		}
		assert.False(t, day.Failed)
		assert.Equal(t, 3.0, day.TotalRx)
		assert.Equal(t, "3.00 MB", day.TotalRxHuman)
		assert.Equal(t, "1024 KB", day.TotalTxHuman)
	}
	assert.Equal(t, 3, failedDays)

	for _, params := range b.fetches {
		assert.Equal(t, "5", params.Get("maxSamples"))
	}
}

func TestQueryCounterpartyWindow_DefaultsAndBounds(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`{}`) }}
	h := newHarness(t, b)

	assert.Len(t, h.ctrl.QueryCounterpartyWindow(context.Background(), "x", 0), DefaultWindowDays)
	assert.Len(t, h.ctrl.QueryCounterpartyWindow(context.Background(), "x", 400), MaxWindowDays)
}

func TestRetryFailedEndpoints_RetriesOnlyFailedSubset(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	b := &backend{fetch: func(ep model.Endpoint, _ url.Values) sheets.Result {
		mu.Lock()
		defer mu.Unlock()
		if ep == model.InterfaceStats && !healthy {
			return sheets.Result{Status: sheets.StatusFailed, Err: errors.New("HTTP 502 Bad Gateway")}
		}
		return ok(`{}`)
	}}
	h := newHarness(t, b)
	ctx := context.Background()

	h.ctrl.RefreshAll(ctx)
	require.Equal(t, 4, b.fetchCount())
	failed := h.ctrl.CurrentSnapshot().Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, model.InterfaceStats, failed[0].Endpoint)

	mu.Lock()
	healthy = true
	mu.Unlock()

	outcomes := h.ctrl.RetryFailedEndpoints(ctx)
	assert.Equal(t, map[model.Endpoint]syncer.Outcome{model.InterfaceStats: syncer.Applied}, outcomes)
	assert.Equal(t, 5, b.fetchCount())
	assert.Empty(t, h.ctrl.CurrentSnapshot().Failed())

	assert.Empty(t, h.ctrl.RetryFailedEndpoints(ctx))
	assert.Equal(t, 5, b.fetchCount())
}

func TestSubmitEdit(t *testing.T) {
	b := &backend{
		fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`{}`) },
		post: func(_ model.Endpoint, row map[string]any) error {
			if row["Interface"] == "bad" {
				return &sheets.BackendError{Message: "row not found"}
			}
			return nil
		},
	}
	h := newHarness(t, b)
	ctx := context.Background()

	err := h.ctrl.SubmitEdit(ctx, model.InterfaceStats, map[string]any{"Interface": "bad"})
	var backendErr *sheets.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Zero(t, h.ctrl.CurrentSnapshot().Status(model.InterfaceStats).ConsecutiveFailures)
	assert.Zero(t, b.fetchCount())

	// Healthy endpoint: the reconciling background refresh is skipped.
	require.NoError(t, h.ctrl.SubmitEdit(ctx, model.InterfaceStats, map[string]any{"Interface": "ether1"}))
	assert.Zero(t, b.fetchCount())

	require.Error(t, h.ctrl.SubmitEdit(ctx, "nope", nil))
	assert.Equal(t, 2, b.posts)
}

func TestSubmitEdit_ReconcilesFailingEndpoint(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result {
		return ok(`{"latest": [{"Interface": "ether1"}]}`)
	}}
	h := newHarness(t, b)
	ctx := context.Background()

	h.store.RecordFailure(model.InterfaceStats, "timeout")

	require.NoError(t, h.ctrl.SubmitEdit(ctx, model.InterfaceStats, map[string]any{"Interface": "ether1"}))
	assert.Equal(t, 1, b.fetchCount())
	snap := h.ctrl.CurrentSnapshot()
	assert.False(t, snap.Status(model.InterfaceStats).Failed())
	require.NotNil(t, snap.Interface)
	assert.Len(t, snap.Interface.Latest, 1)
}

func TestRestoreSeedsFromCacheAndTheme(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`{}`) }}
	h := newHarness(t, b)
	ctx := context.Background()

	router := model.RouterHealthRecord{Name: "edge", CPUDisplay: "5%"}
	stamp := testNow.Add(-time.Hour)
	require.NoError(t, h.cache.SaveRecord(ctx, model.Record{Endpoint: model.RouterHealth, Router: &router}, stamp))
	require.NoError(t, h.cache.SetTheme(ctx, model.ThemeDark))

	require.NoError(t, h.ctrl.Restore(ctx))

	snap := h.ctrl.CurrentSnapshot()
	require.NotNil(t, snap.Router)
	assert.Equal(t, "5%", snap.Router.CPUDisplay)
	assert.False(t, snap.Status(model.RouterHealth).Loading)
	assert.True(t, snap.Status(model.Payments).Loading)
	require.NotNil(t, snap.LastUpdatedAt)
	assert.True(t, snap.LastUpdatedAt.Equal(stamp))
	assert.Zero(t, snap.Version)
	assert.Equal(t, model.ThemeDark, h.ctrl.Theme())
}

func TestToggleThemePersists(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`{}`) }}
	h := newHarness(t, b)
	ctx := context.Background()

	assert.Equal(t, model.ThemeLight, h.ctrl.Theme())
	theme, err := h.ctrl.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, theme)

	stored, err := h.cache.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, stored)

	theme, err = h.ctrl.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, theme)
}

func TestClearCacheResetsState(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`[{"PHONE": "1", "AMOUNT": 5}]`) }}
	h := newHarness(t, b)
	ctx := context.Background()

	h.ctrl.RefreshAll(ctx)
	require.NotNil(t, h.ctrl.CurrentSnapshot().Payments)
	assert.Len(t, h.ctrl.CounterpartyPayments("1"), 1)

	require.NoError(t, h.ctrl.ClearCache(ctx))

	snap := h.ctrl.CurrentSnapshot()
	assert.Nil(t, snap.Payments)
	assert.True(t, snap.Status(model.Payments).Loading)
	assert.Empty(t, h.ctrl.CounterpartyPayments("1"))

	records, _, err := h.cache.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubscribeSeesVersionChanges(t *testing.T) {
	b := &backend{fetch: func(model.Endpoint, url.Values) sheets.Result { return ok(`{}`) }}
	h := newHarness(t, b)

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := h.ctrl.Subscribe(func(s state.Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})
	defer unsubscribe()

	h.ctrl.RefreshAll(context.Background())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, versions, 4)
	assert.Equal(t, uint64(4), versions[len(versions)-1])
}
