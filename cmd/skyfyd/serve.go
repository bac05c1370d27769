// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skyfy/skyfy/internal/daemon"
	"github.com/skyfy/skyfy/internal/log"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.Derive(func(c *zerolog.Context) {
				*c = c.Str(log.FieldComponent, "main").Str("commit", commit)
			})
			logger.Info().
				Str(log.FieldEvent, "startup").
				Str("built", buildDate).
				Str("listen", cfg.Server.ListenAddr).
				Msg("starting skyfyd")

			app, err := daemon.Build(runCtx, cfg)
			if err != nil {
				return err
			}
			if err := app.Run(runCtx); err != nil && runCtx.Err() == nil {
				return err
			}
			logger.Info().Str(log.FieldEvent, "shutdown").Msg("skyfyd stopped")
			return nil
		},
	}
}

// commandCtx returns the command's context, never nil.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
