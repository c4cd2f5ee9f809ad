package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/starnet/starwatch/internal/cachestore"
	"github.com/starnet/starwatch/internal/config"
	"github.com/starnet/starwatch/internal/dashboard"
	"github.com/starnet/starwatch/internal/httpapi"
	"github.com/starnet/starwatch/internal/logging"
	"github.com/starnet/starwatch/internal/metrics"
	"github.com/starnet/starwatch/internal/sheets"
	"github.com/starnet/starwatch/internal/state"
	"github.com/starnet/starwatch/internal/syncer"
	"github.com/starnet/starwatch/internal/ui"
)

// Options configure the starwatch application.
type Options struct {
	ConfigPath string
	// Headless skips the terminal UI and logs to stderr; the process runs
	// until the context is cancelled.
	Headless bool
	LogLevel string // overrides the config file when set
}

// Run boots starwatch until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logClose, err := initLogging(cfg, opts)
	if err != nil {
		return err
	}
	defer logClose()
	log := logging.WithComponent("app")

	cache, err := cachestore.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cache.Close()

	client, err := sheets.NewClient(cfg.APIBaseURL, cfg.SecretKey, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := state.NewStore()
	recorder := metrics.New()
	engine := syncer.New(client, store, cache, syncer.Options{
		Intervals:       cfg.Intervals,
		Stagger:         cfg.Stagger,
		PollWhenHealthy: cfg.PollWhenHealthy,
		Logger:          logging.GetLogger(),
		Metrics:         recorder,
	})
	ctrl := dashboard.New(store, engine, client, cache, dashboard.Options{Logger: logging.GetLogger()})

	// Cached data renders immediately; a corrupt cache only costs the head start.
	if err := ctrl.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restore cache")
	}

	pollerDone := StartPoller(ctx, engine, log)
	defer func() {
		cancel()
		<-pollerDone
	}()

	httpErr := make(chan error, 1)
	if cfg.HTTPEnabled() {
		srv := httpapi.New(ctrl, recorder, logging.GetLogger())
		go func() { httpErr <- srv.Run(ctx, cfg.ListenAddr) }()
	}

	log.Info().
		Str("api", cfg.APIBaseURL).
		Str("cache", cfg.CachePath).
		Str("listen", cfg.ListenAddr).
		Bool("headless", opts.Headless).
		Msg("starwatch started")

	if opts.Headless {
		select {
		case <-ctx.Done():
			return nil
		case err := <-httpErr:
			return err
		}
	}

	uiErr := make(chan error, 1)
	go func() {
		uiErr <- ui.Run(ui.Options{
			Context:    ctx,
			Controller: ctrl,
			Location:   time.Local,
			LogPath:    cfg.LogFile,
		})
	}()
	select {
	case err := <-uiErr:
		return err
	case err := <-httpErr:
		cancel()
		<-uiErr
		return err
	}
}

// initLogging sends logs to stderr when headless and to the log file while
// the TUI owns the terminal.
func initLogging(cfg config.Config, opts Options) (func(), error) {
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if !opts.Headless {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	if err := logging.Init(logging.Config{Level: level, Output: out, Console: opts.Headless}); err != nil {
		closeFn()
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return closeFn, nil
}
