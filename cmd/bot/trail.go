package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/health"
	hsvc "trade_guard/internal/modules/health/service"
	"trade_guard/internal/modules/journal"
	jsvc "trade_guard/internal/modules/journal/service"
	okxclient "trade_guard/internal/modules/okx_client"
	okxsvc "trade_guard/internal/modules/okx_client/service"
	okxws "trade_guard/internal/modules/okx_websocket"
	wsvc "trade_guard/internal/modules/okx_websocket/service"
	"trade_guard/internal/notify"
	"trade_guard/internal/trailing"
)

const (
	discoverTimeout = 15 * time.Second
	stopMargin      = 30 * time.Second
)

// trailStopTimeout lets an in-flight iteration finish during shutdown.
func trailStopTimeout(c trailing.Config) time.Duration {
	return c.MaxIteration() + stopMargin
}

func newTrailCmd() *cobra.Command {
	var (
		side  string
		stop  float64
		entry float64
	)
	cmd := &cobra.Command{
		Use:   "trail SYMBOL",
		Short: "Guard an open position with a trailing stop until it closes",
		Long: "Exits 0 when the position is flat or on interrupt, 2 when the protective stop " +
			"could not be kept on the exchange.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := models.ParseSide(side)
			if !ok {
				return errs.E(errs.ConfigInvalid, "trail", "side %q", side)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			want := trailing.Target{Symbol: okxsvc.InstID(args[0]), Side: s, Entry: entry, Stop: stop}

			app := newApp(cfg,
				fx.StopTimeout(trailStopTimeout(cfg.Trail)),
				okxclient.Module(),
				okxws.Module(),
				notify.Module(),
				journal.Module(cfg),
				health.Module(),
				fx.Module("stream",
					fx.Provide(discoverTarget(cfg, want)),
					fx.Provide(trailDeps),
					fx.Invoke(streamTarget),
				),
				trailing.Module(cfg.Trail),
			)
			return runTrail(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&side, "side", "", "LONG or SHORT")
	cmd.Flags().Float64Var(&stop, "stop", 0, "current protective stop price")
	cmd.Flags().Float64Var(&entry, "entry", 0, "entry price (default: average entry on the exchange)")
	_ = cmd.MarkFlagRequired("side")
	_ = cmd.MarkFlagRequired("stop")
	return cmd
}

func discoverTarget(cfg *config.Config, want trailing.Target) func(c *okxsvc.Client) (trailing.Target, error) {
	return func(c *okxsvc.Client) (trailing.Target, error) {
		ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
		defer cancel()
		t, err := trailing.Discover(ctx, c, c.MarketMeta, want)
		if err != nil {
			return t, err
		}
		if t.Leverage == 0 {
			t.Leverage = cfg.Leverage
		}
		return t, nil
	}
}

func trailDeps(
	feed *wsvc.Feed,
	c *okxsvc.Client,
	n *notify.Notifier,
	j *jsvc.Journal,
	state *hsvc.State,
) (trailing.MarketData, trailing.Positions, trailing.Orders, trailing.Notifier, trailing.Journal, trailing.StatusReporter) {
	return feed, c, c, n, j, state
}

func streamTarget(lc fx.Lifecycle, feed *wsvc.Feed, t trailing.Target) {
	lc.Append(fx.StartHook(func() {
		feed.Start(t.Symbol)
	}))
}

// runTrail blocks until the machine shuts the app down or ctx ends, and
// turns a non-zero machine outcome into the process exit status.
func runTrail(ctx context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	code := trailing.ExitClosed
	select {
	case sig := <-app.Wait():
		code = sig.ExitCode
	case <-ctx.Done():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && code == trailing.ExitClosed {
		return err
	}
	if code != trailing.ExitClosed {
		return exitCode(code)
	}
	return nil
}
