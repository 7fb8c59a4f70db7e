package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mujtabafurqan/podcastfy/internal/provision"
)

func provisionCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Reconcile the Railway deployment topology (web, worker, postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provision.New(
				provision.ExecRunner{},
				provision.DefaultDesired(),
				os.Stdin,
				os.Stdout,
				log,
			)
			return p.Reconcile(cmd.Context())
		},
	}
}
