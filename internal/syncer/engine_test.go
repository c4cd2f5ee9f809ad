package syncer

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starnet/starwatch/internal/metrics"
	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/sheets"
	"github.com/starnet/starwatch/internal/state"
)

type fetchFunc func(ctx context.Context, ep model.Endpoint, call int) sheets.Result

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[model.Endpoint]int
	order []model.Endpoint
	fn    fetchFunc
}

func newFakeFetcher(fn fetchFunc) *fakeFetcher {
	return &fakeFetcher{calls: make(map[model.Endpoint]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ep model.Endpoint, _ url.Values) sheets.Result {
	f.mu.Lock()
	f.calls[ep]++
	call := f.calls[ep]
	f.order = append(f.order, ep)
	f.mu.Unlock()
	return f.fn(ctx, ep, call)
}

func (f *fakeFetcher) PostRow(context.Context, model.Endpoint, map[string]any) error {
	return nil
}

func (f *fakeFetcher) Calls(ep model.Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ep]
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []model.Endpoint
}

func (s *fakeSaver) SaveRecord(_ context.Context, rec model.Record, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec.Endpoint)
	return nil
}

func okBody(body string) sheets.Result {
	return sheets.Result{Status: sheets.StatusOK, Body: []byte(body), RequestID: "req"}
}

func failure(msg string) sheets.Result {
	return sheets.Result{Status: sheets.StatusFailed, Err: errors.New(msg), RequestID: "req"}
}

var testNow = time.Date(2025, time.August, 8, 12, 0, 0, 0, time.UTC)

func newEngine(f sheets.Fetcher, store *state.Store, saver RecordSaver, opts Options) *Engine {
	opts.Clock = func() time.Time { return testNow }
	opts.Logger = zerolog.Nop()
	if opts.Stagger == 0 {
		opts.Stagger = time.Millisecond
	}
	return New(f, store, saver, opts)
}

func TestRefresh_ForegroundAppliesAndPersists(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`{"cpu": "24", "memory": "2147483648", "uptime": "90061"}`)
	})
	store := state.NewStore()
	saver := &fakeSaver{}
	e := newEngine(f, store, saver, Options{Metrics: metrics.New()})

	out := e.Refresh(context.Background(), model.RouterHealth, Foreground)
	require.Equal(t, Applied, out)

	snap := store.Snapshot()
	require.NotNil(t, snap.Router)
	assert.Equal(t, "1d 1h 1m", snap.Router.UptimeDisplay)
	assert.Equal(t, uint64(1), snap.Version)
	require.NotNil(t, snap.LastUpdatedAt)
	assert.True(t, snap.LastUpdatedAt.Equal(testNow))
	assert.False(t, snap.Status(model.RouterHealth).Loading)
	assert.Equal(t, []model.Endpoint{model.RouterHealth}, saver.saved)
}

func TestRefresh_BackgroundSkipsHealthyEndpoint(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`{}`)
	})
	store := state.NewStore()
	e := newEngine(f, store, nil, Options{})

	out := e.Refresh(context.Background(), model.Payments, Background)
	assert.Equal(t, Skipped, out)
	assert.Zero(t, f.Calls(model.Payments))
	assert.True(t, store.Status(model.Payments).Loading, "background never touches loading")
}

func TestRefresh_PollWhenHealthyFetchesInBackground(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`[]`)
	})
	e := newEngine(f, state.NewStore(), nil, Options{PollWhenHealthy: true})

	assert.Equal(t, Applied, e.Refresh(context.Background(), model.Payments, Background))
	assert.Equal(t, 1, f.Calls(model.Payments))
}

func TestRefresh_BackgroundRetriesAfterFailure(t *testing.T) {
	f := newFakeFetcher(func(_ context.Context, _ model.Endpoint, call int) sheets.Result {
		if call == 1 {
			return failure("HTTP 500 Internal Server Error oops")
		}
		return okBody(`{"daily": [{"user": "alice"}]}`)
	})
	store := state.NewStore()
	e := newEngine(f, store, nil, Options{})

	require.Equal(t, Failed, e.Refresh(context.Background(), model.UserUsage, Foreground))
	st := store.Status(model.UserUsage)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, "HTTP 500 Internal Server Error oops", st.LastError)
	assert.False(t, st.Loading)

	require.Equal(t, Applied, e.Refresh(context.Background(), model.UserUsage, Background))
	st = store.Status(model.UserUsage)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.False(t, st.Failed())
	assert.Equal(t, 2, f.Calls(model.UserUsage))

	assert.Equal(t, Skipped, e.Refresh(context.Background(), model.UserUsage, Background))
	assert.Equal(t, 2, f.Calls(model.UserUsage))
}

func TestRefresh_CancellationIsNoop(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return sheets.Result{Status: sheets.StatusCancelled}
	})
	store := state.NewStore()
	saver := &fakeSaver{}
	e := newEngine(f, store, saver, Options{})

	assert.Equal(t, Cancelled, e.Refresh(context.Background(), model.Payments, Foreground))
	snap := store.Snapshot()
	assert.Zero(t, snap.Version)
	assert.Zero(t, snap.Status(model.Payments).ConsecutiveFailures)
	assert.Empty(t, snap.Failed())
	assert.Empty(t, saver.saved)
}

func TestRefresh_SupersededResponseIsDiscarded(t *testing.T) {
	started := make(chan context.Context, 1)
	release := make(chan struct{})

	f := newFakeFetcher(func(ctx context.Context, _ model.Endpoint, call int) sheets.Result {
		if call == 1 {
			started <- ctx
			<-release
			// Late response that ignores cancellation.
			return okBody(`[{"AMOUNT": 1}]`)
		}
		return okBody(`[{"AMOUNT": 2}]`)
	})
	store := state.NewStore()
	e := newEngine(f, store, nil, Options{})

	first := make(chan Outcome, 1)
	go func() { first <- e.Refresh(context.Background(), model.Payments, Foreground) }()
	firstCtx := <-started

	second := e.Refresh(context.Background(), model.Payments, Foreground)
	require.Equal(t, Applied, second)
	require.ErrorIs(t, firstCtx.Err(), context.Canceled, "issuing a new request cancels the old one")

	close(release)
	assert.Equal(t, Stale, <-first)

	snap := store.Snapshot()
	require.NotNil(t, snap.Payments)
	assert.Equal(t, 2.0, snap.Payments.TotalAllTime)
	assert.Equal(t, uint64(1), snap.Version, "exactly one outcome applied")
	assert.False(t, snap.Status(model.Payments).Loading)
}

func TestRefresh_FailureIsolation(t *testing.T) {
	f := newFakeFetcher(func(_ context.Context, ep model.Endpoint, _ int) sheets.Result {
		if ep == model.UserUsage {
			return failure("HTTP 503 Service Unavailable")
		}
		return okBody(`[{"AMOUNT": 10}]`)
	})
	store := state.NewStore()
	seeded := model.UsageSummary{Daily: []model.UsageEntry{{User: "cached"}}, Summary: []model.UsageEntry{}}
	store.Seed(map[model.Endpoint]model.Record{model.UserUsage: {Endpoint: model.UserUsage, Usage: &seeded}}, nil)
	e := newEngine(f, store, nil, Options{})

	var wg sync.WaitGroup
	for _, ep := range []model.Endpoint{model.Payments, model.UserUsage} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Refresh(context.Background(), ep, Foreground)
		}()
	}
	wg.Wait()

	snap := store.Snapshot()
	require.NotNil(t, snap.Payments)
	assert.Equal(t, 10.0, snap.Payments.TotalAllTime)
	require.NotNil(t, snap.Usage)
	assert.Equal(t, "cached", snap.Usage.Daily[0].User)

	failed := snap.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, model.UserUsage, failed[0].Endpoint)
	assert.Equal(t, "HTTP 503 Service Unavailable", failed[0].Message)
}

func TestInitialLoad_OrderAndStagger(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`{}`)
	})
	e := newEngine(f, state.NewStore(), nil, Options{Stagger: 5 * time.Millisecond})

	start := time.Now()
	outcomes := e.InitialLoad(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, model.Endpoints(), f.order)
	assert.Len(t, outcomes, 4)
	for ep, out := range outcomes {
		assert.Equal(t, Applied, out, "endpoint %s", ep)
	}
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}

func TestInitialLoad_StopsOnCancel(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`{}`)
	})
	e := newEngine(f, state.NewStore(), nil, Options{Stagger: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan map[model.Endpoint]Outcome, 1)
	go func() { done <- e.InitialLoad(ctx) }()

	require.Eventually(t, func() bool { return f.Calls(model.Payments) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case outcomes := <-done:
		assert.Len(t, outcomes, 1)
	case <-time.After(time.Second):
		t.Fatal("InitialLoad did not return after cancel")
	}
}

func TestStartStop_SchedulesEveryEndpoint(t *testing.T) {
	f := newFakeFetcher(func(context.Context, model.Endpoint, int) sheets.Result {
		return okBody(`{}`)
	})
	e := newEngine(f, state.NewStore(), nil, Options{
		Intervals: map[model.Endpoint]time.Duration{model.Payments: time.Minute},
	})

	assert.Equal(t, time.Minute, e.Interval(model.Payments))
	assert.Equal(t, 30*time.Second, e.Interval(model.RouterHealth))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Start(ctx)
	assert.Equal(t, 4, e.ScheduledJobs())

	e.Stop()
	assert.Zero(t, e.ScheduledJobs())
}

func TestCancelAll_AbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	f := newFakeFetcher(func(ctx context.Context, _ model.Endpoint, _ int) sheets.Result {
		close(started)
		<-ctx.Done()
		return sheets.Result{Status: sheets.StatusCancelled}
	})
	store := state.NewStore()
	e := newEngine(f, store, nil, Options{})

	done := make(chan Outcome, 1)
	go func() { done <- e.Refresh(context.Background(), model.InterfaceStats, Foreground) }()
	<-started
	e.CancelAll()

	assert.Equal(t, Cancelled, <-done)
	assert.False(t, store.Status(model.InterfaceStats).Loading)
	assert.Zero(t, store.Snapshot().Version)
}
