package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically evicts game rooms with no activity past the idle
// threshold, so abandoned sessions never leak memory. Clients cannot cancel
// a sweep; any room activity resets LastActivity, which the next sweep
// re-evaluates.
type Reaper struct {
	games     *Manager
	interval  time.Duration
	idleAfter time.Duration
}

func NewReaper(games *Manager, interval, idleAfter time.Duration) *Reaper {
	return &Reaper{games: games, interval: interval, idleAfter: idleAfter}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.reaper").Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one eviction pass. A panic inside must never take the process
// down with it.
func (r *Reaper) Sweep() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("module", "app.reaper").Msg("sweep panicked")
		}
	}()
	cutoff := time.Now().Add(-r.idleAfter)
	if n := r.games.CloseIdle(cutoff); n > 0 {
		log.Info().Str("module", "app.reaper").Int("closed", n).Msg("idle rooms reaped")
	}
}
