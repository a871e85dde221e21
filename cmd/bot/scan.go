package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"trade_guard/internal/modules/config"
	okxclient "trade_guard/internal/modules/okx_client"
	okxsvc "trade_guard/internal/modules/okx_client/service"
	"trade_guard/internal/modules/scanner"
	scansvc "trade_guard/internal/modules/scanner/service"
	"trade_guard/internal/notify"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [symbols...]",
		Short: "Score symbols across timeframes and report opportunities",
		Long: "Without arguments the configured watchlist is scanned, or the most volatile " +
			"USDT swaps when no watchlist is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			var sc *scansvc.Scanner
			app := newApp(cfg,
				okxclient.Module(),
				notify.Module(),
				scanner.Module(),
				fx.Populate(&sc),
			)
			return runOnce(cmd.Context(), app, func(ctx context.Context) error {
				symbols := make([]string, 0, len(args))
				for _, a := range args {
					symbols = append(symbols, okxsvc.InstID(a))
				}
				symbols, err := sc.Symbols(ctx, symbols)
				if err != nil {
					return err
				}
				out, err := sc.Scan(ctx, symbols)
				if err != nil {
					return err
				}
				return printScan(cmd.OutOrStdout(), out)
			})
		},
	}
}
