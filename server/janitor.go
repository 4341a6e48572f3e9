package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor is the periodic maintenance run between requests.
type Janitor interface {
	ExpirySweep(ctx context.Context, maxAge time.Duration) (int, error)
	OrphanPurge(ctx context.Context) (int, error)
}

// RunJanitor sweeps expired files and purges dangling records every
// interval until ctx is done. A failed round is logged and retried on the
// next tick.
func RunJanitor(ctx context.Context, j Janitor, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.ExpirySweep(ctx, maxAge); err != nil {
				log.Warn().Err(err).Msg("janitor expiry sweep failed")
			}
			if _, err := j.OrphanPurge(ctx); err != nil {
				log.Warn().Err(err).Msg("janitor orphan purge failed")
			}
		}
	}
}
