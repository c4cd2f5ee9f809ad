package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/starnet/starwatch/internal/model"
	"github.com/starnet/starwatch/internal/syncer"
)

type syncEngine interface {
	Start(ctx context.Context)
	InitialLoad(ctx context.Context) map[model.Endpoint]syncer.Outcome
	Stop()
}

// StartPoller starts the background timers, runs the staggered initial load
// and stops everything once ctx is done. It returns immediately; the returned
// channel closes after the engine has stopped.
func StartPoller(ctx context.Context, engine syncEngine, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Start(ctx)

		outcomes := engine.InitialLoad(ctx)
		summary := zerolog.Dict()
		failed := 0
		for ep, out := range outcomes {
			summary.Str(string(ep), out.String())
			if out == syncer.Failed {
				failed++
			}
		}
		logger.Info().Dict("outcomes", summary).Int("failed", failed).Msg("initial load finished")

		<-ctx.Done()
		engine.Stop()
		logger.Debug().Msg("poller stopped")
	}()
	return done
}
