package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/normalize"
	"github.com/starnet/starwatch/internal/sheets"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
)

// Refresher is the slice of the sync engine the controller drives.
type Refresher interface {
	Refresh(ctx context.Context, ep model.Endpoint, mode syncer.Mode) syncer.Outcome
	CancelAll()
}

// Cache is the durable state the controller restores from and manages.
type Cache interface {
	LoadRecords(ctx context.Context) (map[model.Endpoint]model.Record, []model.Endpoint, error)
	LastUpdated(ctx context.Context) (time.Time, bool, error)
	ClearRecords(ctx context.Context) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
}

const (
	// DefaultWindowDays is the counterparty detail window.
	DefaultWindowDays = 7
	// MaxWindowDays bounds a single window query.
	MaxWindowDays = 31
)

const (
	windowMaxSamples = 5
	dateKeyLayout    = "2006-01-02"
)

// Options configures a Controller.
type Options struct {
	Clock    func() time.Time
	Location *time.Location
	Logger   zerolog.Logger
}

// Controller is the collaborator-facing surface: snapshot reads, change
// subscription and the user intents that need the backend.
type Controller struct {
	store      *state.Store
	engine     Refresher
	fetcher    sheets.Fetcher
	cache      Cache
	normalizer normalize.Normalizer
	clock      func() time.Time
	loc        *time.Location
	log        zerolog.Logger

	mu    sync.RWMutex
	theme string
}

// New builds a Controller. cache may be nil, in which case nothing is
// restored or persisted and the theme lives in memory only.
func New(store *state.Store, engine Refresher, fetcher sheets.Fetcher, cache Cache, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Controller{
		store:      store,
		engine:     engine,
		fetcher:    fetcher,
		cache:      cache,
		normalizer: normalize.New(opts.Clock),
		clock:      opts.Clock,
		loc:        opts.Location,
		log:        opts.Logger.With().Str("component", "dashboard").Logger(),
		theme:      model.ThemeLight,
	}
}

// Restore seeds the snapshot from the cache so consumers can render before
// the network answers. Corrupt entries are dropped and logged.
func (c *Controller) Restore(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	records, skipped, err := c.cache.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("load cached records: %w", err)
	}
	for _, ep := range skipped {
		c.log.Warn().Str("endpoint", string(ep)).Msg("dropped unreadable cache entry")
	}

	var lastUpdated *time.Time
	if t, ok, err := c.cache.LastUpdated(ctx); err != nil {
		return fmt.Errorf("load last updated: %w", err)
	} else if ok {
		lastUpdated = &t
	}
	c.store.Seed(records, lastUpdated)

	theme, err := c.cache.Theme(ctx)
	if err != nil {
		return fmt.Errorf("load theme: %w", err)
	}
	c.mu.Lock()
	c.theme = theme
	c.mu.Unlock()

	c.log.Info().Int("records", len(records)).Msg("restored cache")
	return nil
}

// CurrentSnapshot returns the current Application Snapshot.
func (c *Controller) CurrentSnapshot() state.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers fn for snapshot version changes.
func (c *Controller) Subscribe(fn state.Listener) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

// RetryFailedEndpoints issues a foreground refresh, concurrently, for every
// endpoint currently in a failed state and reports each retry's outcome.
func (c *Controller) RetryFailedEndpoints(ctx context.Context) map[model.Endpoint]syncer.Outcome {
	var eps []model.Endpoint
	for _, f := range c.store.Snapshot().Failed() {
		eps = append(eps, f.Endpoint)
	}
	return c.refreshEach(ctx, eps)
}

// RefreshAll issues a foreground refresh of every endpoint concurrently.
func (c *Controller) RefreshAll(ctx context.Context) map[model.Endpoint]syncer.Outcome {
	return c.refreshEach(ctx, model.Endpoints())
}

func (c *Controller) refreshEach(ctx context.Context, eps []model.Endpoint) map[model.Endpoint]syncer.Outcome {
	outcomes := make(map[model.Endpoint]syncer.Outcome, len(eps))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ep := range eps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := c.engine.Refresh(ctx, ep, syncer.Foreground)
			mu.Lock()
			outcomes[ep] = out
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

// SubmitEdit posts row to the endpoint's sheet. A rejected mutation is
// returned to the caller and leaves polling state untouched. On success a
// background refresh of the endpoint reconciles.
func (c *Controller) SubmitEdit(ctx context.Context, ep model.Endpoint, row map[string]any) error {
	if _, err := model.ParseEndpoint(string(ep)); err != nil {
		return err
	}
	if err := c.fetcher.PostRow(ctx, ep, row); err != nil {
		c.log.Warn().Err(err).Str("endpoint", string(ep)).Msg("edit rejected")
		return fmt.Errorf("save %s row: %w", ep, err)
	}
	out := c.engine.Refresh(ctx, ep, syncer.Background)
	c.log.Info().Str("endpoint", string(ep)).Str("reconcile", out.String()).Msg("edit saved")
	return nil
}

// QueryCounterpartyWindow fetches one usage query per calendar day, from
// today backwards, all at once. A day that fails is zero-filled and marked
// Failed; the result always has one entry per day, newest first.
func (c *Controller) QueryCounterpartyWindow(ctx context.Context, counterparty string, days int) []model.DayUsage {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if days > MaxWindowDays {
		days = MaxWindowDays
	}

	today := c.clock().In(c.loc)
	window := make([]model.DayUsage, days)
	var wg sync.WaitGroup
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(dateKeyLayout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			window[i] = c.queryDay(ctx, counterparty, date)
		}()
	}
	wg.Wait()
	return window
}

func (c *Controller) queryDay(ctx context.Context, counterparty, date string) model.DayUsage {
	params := url.Values{}
	params.Set("date", date)
	params.Set("maxSamples", strconv.Itoa(windowMaxSamples))

	res := c.fetcher.Fetch(ctx, model.UserUsage, params)
	if res.Status != sheets.StatusOK {
		day := normalize.ZeroDayUsage(date)
		day.Failed = true
		if res.Err != nil {
			c.log.Debug().Err(res.Err).Str("date", date).Msg("window day failed")
		}
		return day
	}
	return normalize.DayUsageFor(c.normalizer.Usage(res.Body), counterparty, date)
}

// CounterpartyPayments returns every payment for the counterparty key,
// newest first, from the current snapshot.
func (c *Controller) CounterpartyPayments(key string) []model.Payment {
	snap := c.store.Snapshot()
	if snap.Payments == nil {
		return []model.Payment{}
	}
	return normalize.CounterpartyPayments(*snap.Payments, key)
}

// Theme returns the current theme preference.
func (c *Controller) Theme() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.theme
}

// ToggleTheme flips between dark and light and persists the choice.
func (c *Controller) ToggleTheme(ctx context.Context) (string, error) {
	c.mu.Lock()
	next := model.ThemeDark
	if c.theme == model.ThemeDark {
		next = model.ThemeLight
	}
	c.theme = next
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.SetTheme(ctx, next); err != nil {
			return next, fmt.Errorf("save theme: %w", err)
		}
	}
	return next, nil
}

// ClearCache aborts in-flight requests, wipes cached records and resets
// every endpoint's sync state to loading. Callers usually follow it with
// RefreshAll.
func (c *Controller) ClearCache(ctx context.Context) error {
	c.engine.CancelAll()
	if c.cache != nil {
		if err := c.cache.ClearRecords(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	c.store.Reset()
	c.log.Info().Msg("cache cleared")
	return nil
}
