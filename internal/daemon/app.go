// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App runs the manager and background jobs until ctx ends.
type App struct {
	logger  zerolog.Logger
	manager Manager
	sweeper *Sweeper
}

// NewApp assembles an App. sweeper may be nil.
func NewApp(logger zerolog.Logger, manager Manager, sweeper *Sweeper) *App {
	return &App{logger: logger, manager: manager, sweeper: sweeper}
}

// Addr is the bound HTTP address once running.
func (a *App) Addr() net.Addr {
	if a.manager == nil {
		return nil
	}
	return a.manager.Addr()
}

// Run blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.sweeper != nil {
		g.Go(func() error { return a.sweeper.Run(gctx) })
	}
	g.Go(func() error { return a.manager.Start(gctx) })

	err := g.Wait()
	if err != nil {
		a.logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
	}
	return err
}
