package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomato-app/tomato-support/internal/bootstrap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert the seed menu into the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		svc, err := bootstrap.Build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer svc.Close(cmd.Context())

		n, err := svc.Seed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d menu items\n", n)
		return nil
	},
}
