package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reaper runs ReapExpired on a fixed interval.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger
}

// NewReaper returns a Reaper. A non-positive interval makes Run return immediately.
func NewReaper(manager *Manager, interval time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{manager: manager, interval: interval, logger: logger.With().Str("component", "reaper").Logger()}
}

// Run reaps once, then on every tick until ctx is done. Failures are logged and the next tick retries.
func (r *Reaper) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info().Msg("reaper disabled")
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.reapOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reaper) reapOnce(ctx context.Context) {
	n, err := r.manager.ReapExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("reap failed")
		}
		return
	}
	if n > 0 {
		r.logger.Info().Int64("count", n).Msg("reaped expired sessions")
	}
}
