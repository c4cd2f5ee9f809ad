package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/starnet/starwatch/internal/metrics"
	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/normalize"
	"github.com/starnet/starwatch/internal/sheets"
	"github.com/starnet/starwatch/internal/state"
)

// Mode selects foreground or background refresh semantics.
type Mode int

const (
	// Foreground always fetches and drives the endpoint's loading flag.
	Foreground Mode = iota
	// Background fetches only while the endpoint has a failure streak.
	Background
)

func (m Mode) String() string {
	if m == Background {
		return "background"
	}
	return "foreground"
}

// Outcome reports what a Refresh call did.
type Outcome int

const (
	Applied Outcome = iota
	Failed
	Cancelled
	// Stale means the response arrived after a newer request superseded it
	// and was discarded.
	Stale
	// Skipped means a background refresh found the endpoint healthy.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "ok"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Stale:
		return "stale"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RecordSaver persists a canonical record after it is applied.
type RecordSaver interface {
	SaveRecord(ctx context.Context, rec model.Record, updatedAt time.Time) error
}

// Options configures an Engine. Zero values fall back to the endpoint
// defaults (15s/20s/25s/30s, 300ms stagger, time.Now).
type Options struct {
	Intervals       map[model.Endpoint]time.Duration
	Stagger         time.Duration
	PollWhenHealthy bool
	Clock           func() time.Time
	Logger          zerolog.Logger
	Metrics         *metrics.Recorder
}

const defaultStagger = 300 * time.Millisecond

// lane is the per-endpoint request slot. gen identifies the newest request;
// anything that completes with an older generation is stale.
type lane struct {
	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	loadingGen uint64
}

// Engine owns one polling lifecycle per endpoint.
type Engine struct {
	fetcher    sheets.Fetcher
	store      *state.Store
	saver      RecordSaver
	normalizer normalize.Normalizer
	opts       Options
	log        zerolog.Logger
	lanes      map[model.Endpoint]*lane

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New builds an Engine. saver may be nil to skip persistence.
func New(fetcher sheets.Fetcher, store *state.Store, saver RecordSaver, opts Options) *Engine {
	if opts.Stagger <= 0 {
		opts.Stagger = defaultStagger
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	lanes := make(map[model.Endpoint]*lane, len(model.Endpoints()))
	for _, ep := range model.Endpoints() {
		lanes[ep] = &lane{}
	}
	return &Engine{
		fetcher:    fetcher,
		store:      store,
		saver:      saver,
		normalizer: normalize.New(opts.Clock),
		opts:       opts,
		log:        opts.Logger.With().Str("component", "syncer").Logger(),
		lanes:      lanes,
	}
}

// Interval returns the background period for ep.
func (e *Engine) Interval(ep model.Endpoint) time.Duration {
	if d, ok := e.opts.Intervals[ep]; ok && d > 0 {
		return d
	}
	return ep.DefaultInterval()
}

// Refresh fetches ep once. Issuing a request cancels the endpoint's previous
// in-flight request, and a response from a superseded request never reaches
// the store. Background refreshes are skipped while the endpoint is healthy
// unless PollWhenHealthy is set.
func (e *Engine) Refresh(ctx context.Context, ep model.Endpoint, mode Mode) Outcome {
	l, ok := e.lanes[ep]
	if !ok {
		e.log.Warn().Str("endpoint", string(ep)).Msg("refresh for unknown endpoint")
		return Skipped
	}
	if mode == Background && !e.opts.PollWhenHealthy && e.store.Status(ep).ConsecutiveFailures == 0 {
		e.opts.Metrics.BackgroundSkipped(string(ep))
		return Skipped
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	if mode == Foreground {
		l.loadingGen = gen
		e.store.SetLoading(ep, true)
	}
	l.mu.Unlock()

	start := time.Now()
	res := e.fetcher.Fetch(reqCtx, ep, nil)
	elapsed := time.Since(start)

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.gen == gen
	if current {
		l.cancel = nil
	}
	if l.loadingGen == gen {
		l.loadingGen = 0
		e.store.SetLoading(ep, false)
	}

	outcome := e.settle(ctx, ep, res, current)
	e.opts.Metrics.FetchCompleted(string(ep), mode.String(), outcome.String(), elapsed)

	level := zerolog.DebugLevel
	switch outcome {
	case Failed:
		level = zerolog.WarnLevel
	case Stale:
		level = zerolog.InfoLevel
	}
	e.log.WithLevel(level).
		Err(res.Err).
		Str("endpoint", string(ep)).
		Str("mode", mode.String()).
		Str("request_id", res.RequestID).
		Str("outcome", outcome.String()).
		Dur("duration", elapsed).
		Msg("refresh finished")
	return outcome
}

// settle applies res to the store. It runs under the lane lock so the
// staleness check and the write are atomic with respect to newer requests.
func (e *Engine) settle(ctx context.Context, ep model.Endpoint, res sheets.Result, current bool) Outcome {
	if res.Status == sheets.StatusCancelled {
		return Cancelled
	}
	if !current {
		return Stale
	}

	if res.Status != sheets.StatusOK {
		msg := "unknown error"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		n := e.store.RecordFailure(ep, msg)
		e.opts.Metrics.SetFailureStreak(string(ep), n)
		return Failed
	}

	rec := e.normalizer.Normalize(ep, res.Body)
	at := e.opts.Clock()
	version := e.store.Apply(rec, at)
	e.opts.Metrics.SetFailureStreak(string(ep), 0)
	e.opts.Metrics.SetSnapshotVersion(version)

	if e.saver != nil {
		if err := e.saver.SaveRecord(context.WithoutCancel(ctx), rec, at); err != nil {
			e.log.Error().Err(err).Str("endpoint", string(ep)).Msg("persist record")
		}
	}
	return Applied
}

// InitialLoad runs a foreground refresh of every endpoint in order, pausing
// Stagger between them. It returns early when ctx is done.
func (e *Engine) InitialLoad(ctx context.Context) map[model.Endpoint]Outcome {
	outcomes := make(map[model.Endpoint]Outcome, len(model.Endpoints()))
	for i, ep := range model.Endpoints() {
		if i > 0 {
			timer := time.NewTimer(e.opts.Stagger)
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcomes
			case <-timer.C:
			}
		}
		outcomes[ep] = e.Refresh(ctx, ep, Foreground)
	}
	return outcomes
}

// Start schedules a background refresh per endpoint on its own interval.
// Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.cron != nil {
		return
	}

	c := cron.New()
	for _, ep := range model.Endpoints() {
		interval := e.Interval(ep)
		c.Schedule(cron.Every(interval), cron.FuncJob(func() {
			if ctx.Err() != nil {
				return
			}
			e.Refresh(ctx, ep, Background)
		}))
		e.log.Debug().Str("endpoint", string(ep)).Dur("interval", interval).Msg("scheduled background refresh")
	}
	c.Start()
	e.cron = c
}

// ScheduledJobs reports how many background timers are registered.
func (e *Engine) ScheduledJobs() int {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.cron == nil {
		return 0
	}
	return len(e.cron.Entries())
}

// Stop halts the timers, cancels in-flight requests and waits for running
// timer jobs to return.
func (e *Engine) Stop() {
	e.cronMu.Lock()
	c := e.cron
	e.cron = nil
	e.cronMu.Unlock()

	e.CancelAll()
	if c != nil {
		<-c.Stop().Done()
	}
}

// CancelAll aborts every in-flight request. Their eventual results are
// treated as cancelled or stale and change nothing.
func (e *Engine) CancelAll() {
	for _, ep := range model.Endpoints() {
		l := e.lanes[ep]
		l.mu.Lock()
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
		l.gen++
		if l.loadingGen != 0 {
			l.loadingGen = 0
			e.store.SetLoading(ep, false)
		}
		l.mu.Unlock()
	}
}
