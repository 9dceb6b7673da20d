package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionExpirer ends sessions that have been idle too long.
type SessionExpirer interface {
	ExpireIdle(ctx context.Context, now time.Time) (int, error)
}

// Janitor periodically expires idle sessions.
type Janitor struct {
	sessions SessionExpirer
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewJanitor creates a janitor sweeping at cfg.Interval.
func NewJanitor(cfg JanitorConfig, sessions SessionExpirer, logger zerolog.Logger) *Janitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		sessions: sessions,
		interval: interval,
		logger:   logger.With().Str("component", "janitor").Logger(),
		now:      time.Now,
	}
}

// Run sweeps until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("starting session janitor")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns how many sessions it ended.
func (j *Janitor) Sweep(ctx context.Context) int {
	start := time.Now()
	expired, err := j.sessions.ExpireIdle(ctx, j.now())
	if err != nil {
		j.logger.Error().Err(err).Int("expired", expired).Msg("session sweep failed")
		return expired
	}
	if expired > 0 {
		j.logger.Info().
			Int("expired", expired).
			Dur("duration", time.Since(start)).
			Msg("expired idle sessions")
	}
	return expired
}
