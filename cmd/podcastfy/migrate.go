package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mujtabafurqan/podcastfy/internal/config"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
)

func migrateCmd(cfg config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the podcasts table and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseURL(cfg); err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := postgresql.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgresql.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("schema up to date", "dsn", redactDSN(cfg.DatabaseURL))
			return nil
		},
	}
}
