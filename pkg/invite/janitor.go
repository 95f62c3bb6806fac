package invite

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunJanitor prunes the registry every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, r *Registry, interval time.Duration, logger zerolog.Logger) {
	if r == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := r.Prune(); removed > 0 {
				logger.Info().Int("removed", removed).Msg("pruned expired invites")
			}
		case <-ctx.Done():
			logger.Debug().Msg("invite janitor stopped")
			return
		}
	}
}
