// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyfy/skyfy/internal/daemon"
	"github.com/skyfy/skyfy/internal/metadata"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the metadata schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			store, err := metadata.Open(commandCtx(cmd), cfg.Database.Driver, cfg.Database.DSN, metadata.DefaultOptions())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Migrate(commandCtx(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", store.Driver())
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <content-id>",
		Short: "Delete a content item's remote folder and row on behalf of its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("content id must be a positive integer, got %q", args[0])
			}
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := daemon.NewServices(commandCtx(cmd), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(commandCtx(cmd)) }()

			item, err := svc.Metadata.Get(commandCtx(cmd), id)
			if err != nil {
				return err
			}
			if err := svc.Orchestrator.Delete(commandCtx(cmd), item.OwnerID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d (%s)\n", id, item.Name)
			return nil
		},
	}
}

func newCleanStagingCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "clean-staging",
		Short: "Remove staging leftovers older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-age") {
				cfg.Staging.MaxAge = maxAge
			}
			res := daemon.NewSweeper(cfg.Staging).SweepOnce(commandCtx(cmd))
			out := cmd.OutOrStdout()
			for _, p := range res.Removed {
				fmt.Fprintln(out, "removed", p)
			}
			fmt.Fprintf(out, "%d removed, %d errors\n", len(res.Removed), len(res.Errors))
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d staging entries could not be removed", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Override staging.maxAge")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skyfyd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
