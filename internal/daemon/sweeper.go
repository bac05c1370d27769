// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metrics"
	"github.com/skyfy/skyfy/internal/staging"
)

// ReservationPurger removes uploads abandoned by a crashed process.
type ReservationPurger interface {
	PurgeAbandoned(ctx context.Context) ([]int64, error)
}

// Sweeper periodically removes staging leftovers of crashed runs.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	purger   ReservationPurger
	logger   zerolog.Logger
}

// NewSweeper returns a sweeper for cfg. A non-positive interval disables
// periodic runs; Run then sweeps once and waits for ctx.
func NewSweeper(cfg config.StagingConfig) *Sweeper {
	return &Sweeper{
		dir:      cfg.Dir,
		maxAge:   cfg.MaxAge,
		interval: cfg.SweepInterval,
		logger:   log.WithComponent("staging-sweeper"),
	}
}

// WithReservationPurge makes every sweep also purge abandoned reservations.
func (s *Sweeper) WithReservationPurge(p ReservationPurger) *Sweeper {
	s.purger = p
	return s
}

// SweepOnce removes entries older than the configured age.
func (s *Sweeper) SweepOnce(ctx context.Context) staging.CleanStaleResult {
	s.purgeReservations(ctx)
	res := staging.CleanStale(ctx, s.dir, s.maxAge, s.logger)
	metrics.AddStagingSwept(len(res.Removed))
	for _, e := range res.Errors {
		s.logger.Warn().Err(e.Error).
			Str(log.FieldEvent, "staging.sweep_failed").
			Str(log.FieldStagingPath, e.Path).
			Msg("stale staging entry not removed")
	}
	if len(res.Removed) > 0 {
		s.logger.Info().
			Str(log.FieldEvent, "staging.swept").
			Int("removed", len(res.Removed)).
			Msg("stale staging entries removed")
	}
	return res
}

// Run sweeps at start and then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	s.SweepOnce(ctx)
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) purgeReservations(ctx context.Context) {
	if s.purger == nil {
		return
	}
	ids, err := s.purger.PurgeAbandoned(ctx)
	if err != nil {
		s.logger.Warn().Err(err).
			Str(log.FieldEvent, "metadata.purge_failed").
			Msg("abandoned reservations not purged")
		return
	}
	if len(ids) > 0 {
		s.logger.Info().
			Str(log.FieldEvent, "metadata.purged").
			Ints64("content_ids", ids).
			Msg("abandoned reservations purged")
	}
}
