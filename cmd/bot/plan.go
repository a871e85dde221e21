package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/analysis"
	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/config"
	okxclient "trade_guard/internal/modules/okx_client"
	okxsvc "trade_guard/internal/modules/okx_client/service"
	"trade_guard/internal/modules/scanner"
	"trade_guard/internal/notify"
	"trade_guard/internal/sizing"
	"trade_guard/internal/trailing"
	"trade_guard/pkg/logger"
)

// atrStopMultiple places the default stop 1.5 ATR beyond entry.
const atrStopMultiple = 1.5

type planFlags struct {
	side     string
	entry    float64
	stop     float64
	leverage int
	execute  bool
}

type planDeps struct {
	fx.In

	Config   *config.Config
	Client   *okxsvc.Client
	Fetcher  *analysis.Fetcher
	Notifier *notify.Notifier
	Log      *logger.Logger
}

func newPlanCmd() *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan SYMBOL",
		Short: "Size a position against the account balance",
		Long: "Without --side the side comes from the confluence score. Without --stop the stop " +
			"is placed 1.5 ATR from entry on the entry timeframe. --execute submits the entry, " +
			"a reduce-only stop and the take-profit ladder.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			var deps planDeps
			app := newApp(cfg,
				okxclient.Module(),
				notify.Module(),
				scanner.Module(),
				fx.Invoke(func(d planDeps) { deps = d }),
			)
			return runOnce(cmd.Context(), app, func(ctx context.Context) error {
				plan, meta, err := buildPlan(ctx, deps, okxsvc.InstID(args[0]), f)
				if err != nil {
					return err
				}
				if err := printPlan(cmd.OutOrStdout(), plan); err != nil {
					return err
				}
				if !f.execute {
					return nil
				}
				if err := executePlan(ctx, deps.Client, deps.Config.Trail, plan, meta, deps.Log); err != nil {
					return err
				}
				deps.Notifier.Notify(ctx, models.EventPosition, plan)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.side, "side", "", "LONG or SHORT (default: from the confluence score)")
	cmd.Flags().Float64Var(&f.entry, "entry", 0, "entry price (default: last price)")
	cmd.Flags().Float64Var(&f.stop, "stop", 0, "stop price (default: 1.5 ATR from entry)")
	cmd.Flags().IntVar(&f.leverage, "leverage", 0, "leverage (default: from config)")
	cmd.Flags().BoolVar(&f.execute, "execute", false, "place the orders")
	return cmd
}

func buildPlan(ctx context.Context, d planDeps, symbol string, f planFlags) (models.PositionPlan, models.MarketMeta, error) {
	const op = "plan"
	cfg := d.Config
	scorer := cfg.Scorer()

	var side models.Side
	if f.side != "" {
		s, ok := models.ParseSide(f.side)
		if !ok {
			return models.PositionPlan{}, models.MarketMeta{}, errs.E(errs.ConfigInvalid, op, "side %q", f.side)
		}
		side = s
	} else {
		per, missing, err := d.Fetcher.AnalyzeAll(ctx, symbol, scorer.Timeframes())
		if err != nil {
			return models.PositionPlan{}, models.MarketMeta{}, err
		}
		res := scorer.Score(symbol, per, missing)
		s, ok := scorer.Decide(res, cfg.MinBand())
		if !ok {
			return models.PositionPlan{}, models.MarketMeta{}, errs.E(errs.ConfigInvalid, op,
				"%s: no signal at %s or better (long %.0f, short %.0f); pass --side", symbol, cfg.MinBand(), res.LongScore, res.ShortScore)
		}
		side = s
	}

	meta, err := d.Client.MarketMeta(ctx, symbol)
	if err != nil {
		return models.PositionPlan{}, meta, err
	}
	bal, err := d.Client.Balance(ctx)
	if err != nil {
		return models.PositionPlan{}, meta, err
	}

	entry := f.entry
	if entry <= 0 {
		t, err := d.Client.Ticker(ctx, symbol)
		if err != nil {
			return models.PositionPlan{}, meta, err
		}
		entry = t.Last
	}

	stop := f.stop
	if stop <= 0 {
		bars, err := d.Fetcher.Bars(ctx, symbol, scorer.EntryTF)
		if err != nil {
			return models.PositionPlan{}, meta, err
		}
		a, err := analysis.Analyze(scorer.EntryTF, bars, cfg.Analysis)
		if err != nil {
			return models.PositionPlan{}, meta, err
		}
		if stop, err = sizing.ATRStop(entry, a.Snapshot.ATR, atrStopMultiple, side); err != nil {
			return models.PositionPlan{}, meta, err
		}
	}

	leverage := f.leverage
	if leverage == 0 {
		leverage = cfg.Leverage
	}

	sizer, err := sizing.NewSizer(cfg.Risk)
	if err != nil {
		return models.PositionPlan{}, meta, err
	}
	plan, err := sizer.Size(sizing.Request{
		Symbol:   symbol,
		Side:     side,
		Balance:  bal.Free,
		Entry:    entry,
		Stop:     stop,
		Leverage: leverage,
		Market:   meta,
	})
	return plan, meta, err
}

// executePlan opens the position, then protects it. The stop is retried and
// confirmed on the book under the trailing retry policy; only when that runs
// out is the entry reported as a protection gap. A missing take-profit is not.
func executePlan(ctx context.Context, o trailing.Orders, policy trailing.Config, plan models.PositionPlan, meta models.MarketMeta, log *logger.Logger) error {
	const op = "plan.execute"
	log = log.With(zap.String("symbol", plan.Symbol), zap.String("side", string(plan.Side)))

	entry, err := o.PlaceOrder(ctx, models.OrderRequest{
		Symbol:   plan.Symbol,
		Side:     plan.Side,
		Type:     models.OrderMarket,
		Amount:   plan.Contracts,
		Leverage: plan.Leverage,
	})
	if err != nil {
		return err
	}
	log.Info("entry placed", zap.String("order", entry.ID), zap.Float64("contracts", plan.Contracts))

	// the position is open: an interrupt must not abandon its stop
	protectCtx := context.WithoutCancel(ctx)
	stop, err := trailing.NewPlacement(policy, o, log).Place(protectCtx, models.OrderRequest{
		Symbol:     plan.Symbol,
		Side:       plan.Side,
		Type:       models.OrderStop,
		Amount:     plan.Contracts,
		StopPrice:  plan.Stop,
		ReduceOnly: true,
		Leverage:   plan.Leverage,
	})
	if err != nil {
		log.Error("PROTECTION GAP: entry filled without a stop", logger.Alert(),
			zap.Float64("stop", plan.Stop), zap.Error(err))
		return errs.Wrap(errs.ProtectionGap, op, err)
	}
	log.Info("stop placed", zap.String("order", stop.ID), zap.Float64("stop", plan.Stop))

	for i, amount := range sizing.SplitContracts(plan, meta.LotSize) {
		if amount <= 0 {
			continue
		}
		tp := plan.TakeProfits[i]
		ref, err := o.PlaceOrder(ctx, models.OrderRequest{
			Symbol:     plan.Symbol,
			Side:       plan.Side,
			Type:       models.OrderLimit,
			Amount:     amount,
			Price:      tp.Price,
			ReduceOnly: true,
			Leverage:   plan.Leverage,
		})
		if err != nil {
			log.Warn("take-profit not placed", zap.Int("level", i+1), zap.Float64("price", tp.Price), zap.Error(err))
			continue
		}
		log.Info("take-profit placed", zap.Int("level", i+1), zap.String("order", ref.ID), zap.Float64("price", tp.Price))
	}
	return nil
}
