// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
)

// commandContext loads the configuration once per invocation.
type commandContext struct {
	configPath string
	cfg        *config.AppConfig
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (config.AppConfig, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.NewLoader(c.configPath, version).Load()
	if err != nil {
		return config.AppConfig{}, err
	}
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  cmd.ErrOrStderr(),
		Service: cfg.LogService,
		Version: version,
	})
	c.cfg = &cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "skyfyd",
		Short:         "skyfy content ingestion and delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(
		newServeCommand(ctx),
		newMigrateCommand(ctx),
		newDeleteCommand(ctx),
		newCleanStagingCommand(ctx),
		newVersionCommand(),
	)
	return rootCmd
}
