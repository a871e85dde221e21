package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"trade_guard/internal/errs"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/journal"
	jsvc "trade_guard/internal/modules/journal/service"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the trade journal",
	}

	var days int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Win rate, profit factor and averages over recent trades",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return errs.E(errs.ConfigInvalid, "journal stats", "days %d must be positive", days)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			var j *jsvc.Journal
			app := newApp(cfg, journal.Module(cfg), fx.Populate(&j))
			return runOnce(cmd.Context(), app, func(ctx context.Context) error {
				st, err := j.Stats(ctx, days)
				if err != nil {
					return err
				}
				return printStats(cmd.OutOrStdout(), st)
			})
		},
	}
	stats.Flags().IntVar(&days, "days", 30, "look-back window in days")
	cmd.AddCommand(stats)
	return cmd
}
