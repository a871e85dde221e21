package trailing

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

// Exit codes reported through fx shutdown.
const (
	ExitClosed        = 0
	ExitFailed        = 1
	ExitProtectionGap = 2
)

type machineParams struct {
	fx.In

	Config    Config
	Target    Target
	Market    MarketData
	Positions Positions
	Orders    Orders
	Notifier  Notifier       `optional:"true"`
	Journal   Journal        `optional:"true"`
	Status    StatusReporter `optional:"true"`
	Log       *logger.Logger
}

// Module runs one machine for the provided Target. The app shuts down when
// the machine returns: ExitClosed once flat or on stop, ExitProtectionGap when
// the stop could not be kept on the exchange.
func Module(cfg Config) fx.Option {
	return fx.Module("trailing",
		fx.Supply(cfg),
		fx.Provide(provideMachine),
		fx.Invoke(runMachine),
	)
}

func provideMachine(p machineParams) (*Machine, error) {
	return New(p.Config, p.Target, Deps{
		Market:    p.Market,
		Positions: p.Positions,
		Orders:    p.Orders,
		Notifier:  p.Notifier,
		Journal:   p.Journal,
		Status:    p.Status,
	}, p.Log.With(zap.String("component", "trailing")))
}

// ExitCode maps the result of Run onto a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitClosed
	case errs.Is(err, errs.ProtectionGap):
		return ExitProtectionGap
	}
	return ExitFailed
}

func runMachine(lc fx.Lifecycle, sd fx.Shutdowner, m *Machine, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := m.Run(ctx)
				code := ExitCode(err)
				st := m.Snapshot()
				if code != ExitClosed {
					log.Error("trailing finished with error", zap.Error(err), zap.Int("exit_code", code), logger.Alert())
				} else {
					log.Info("trailing finished",
						zap.String("phase", string(st.Phase)),
						zap.Float64("stop", st.CurrentStop),
						zap.Int("moves", st.Moves))
				}
				if ctx.Err() == nil {
					_ = sd.Shutdown(fx.ExitCode(code))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Discover fills a Target from the live position. Entry falls back to the
// exchange's average entry when zero.
func Discover(ctx context.Context, pos Positions, meta func(context.Context, string) (models.MarketMeta, error), t Target) (Target, error) {
	const op = "trailing.Discover"
	list, err := pos.Positions(ctx, t.Symbol)
	if err != nil {
		return t, err
	}
	var found *models.Position
	for i := range list {
		if list[i].Symbol == t.Symbol && list[i].Side == t.Side && list[i].Contracts > 0 {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return t, errs.E(errs.ConfigInvalid, op, "no open %s position on %s", t.Side, t.Symbol)
	}
	m, err := meta(ctx, t.Symbol)
	if err != nil {
		return t, err
	}
	t.Contracts = found.Contracts
	t.ContractSize = m.ContractSize
	t.TickSize = m.TickSize
	if t.Entry == 0 {
		t.Entry = found.Entry
	}
	if t.Leverage == 0 {
		t.Leverage = found.Leverage
	}
	return t, nil
}
