package trailing

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

// Placement submits a protective stop and keeps trying until it is confirmed
// on the book or the attempts run out. Only ConfigInvalid stops it early.
//
// An order that was accepted but not yet visible is never abandoned: the next
// attempt first looks for it again and, if it is still missing, cancels it
// before submitting a replacement.
type Placement struct {
	Orders         Orders
	CallTimeout    time.Duration
	Attempts       int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Verify         bool
	Log            *logger.Logger
}

// NewPlacement takes the retry policy from cfg.
func NewPlacement(cfg Config, orders Orders, log *logger.Logger) Placement {
	return Placement{
		Orders:         orders,
		CallTimeout:    cfg.CallTimeout,
		Attempts:       cfg.MaxRetries,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		Verify:         cfg.VerifyPlacement,
		Log:            log,
	}
}

func (p Placement) policy(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BackoffInitial
	b.MaxInterval = p.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func (p Placement) log() *logger.Logger {
	if p.Log == nil {
		return logger.NewNop()
	}
	return p.Log
}

func (p Placement) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(cctx)
}

// Place runs with the configured number of attempts.
func (p Placement) Place(ctx context.Context, req models.OrderRequest) (models.OrderRef, error) {
	return p.PlaceN(ctx, req, p.Attempts)
}

// PlaceN is Place with an explicit attempt budget.
func (p Placement) PlaceN(ctx context.Context, req models.OrderRequest, attempts int) (models.OrderRef, error) {
	var (
		ref     models.OrderRef
		pending models.OrderRef // accepted, not yet seen on the book
	)
	op := func() error {
		if !pending.Empty() {
			found, err := p.resting(ctx, req.Symbol, pending)
			if err != nil {
				return err
			}
			if found {
				ref = pending
				return nil
			}
			err = p.call(ctx, func(cctx context.Context) error {
				return p.Orders.CancelOrder(cctx, req.Symbol, pending)
			})
			if err != nil {
				// it may still go live; placing another could double the stop
				return errs.Wrap(errs.GatewayTransient, "trailing.place", err)
			}
			p.log().Warn("cancelled unconfirmed stop", zap.String("order", pending.ID))
			pending = models.OrderRef{}
		}

		var placed models.OrderRef
		err := p.call(ctx, func(cctx context.Context) error {
			var err error
			placed, err = p.Orders.PlaceOrder(cctx, req)
			return err
		})
		if err != nil {
			if errs.Is(err, errs.ConfigInvalid) {
				return backoff.Permanent(err)
			}
			return err
		}
		if p.Verify {
			found, err := p.resting(ctx, req.Symbol, placed)
			if err != nil || !found {
				pending = placed
				if err == nil {
					err = errs.E(errs.GatewayTransient, "trailing.verify", "stop %s not found among open orders", placed.ID)
				}
				return err
			}
		}
		ref = placed
		return nil
	}
	err := backoff.RetryNotify(op, p.policy(ctx, attempts), func(err error, d time.Duration) {
		p.log().Warn("stop placement failed, retrying",
			zap.Float64("stop", req.StopPrice), zap.Duration("in", d), zap.Error(err))
	})
	if err != nil {
		if !pending.Empty() {
			p.log().Warn("unconfirmed stop left on request", zap.String("order", pending.ID))
		}
		return models.OrderRef{}, err
	}
	return ref, nil
}

// resting reports whether ref is on the open-order book.
func (p Placement) resting(ctx context.Context, symbol string, ref models.OrderRef) (bool, error) {
	var orders []models.Order
	err := p.call(ctx, func(cctx context.Context) error {
		var err error
		orders, err = p.Orders.OpenOrders(cctx, symbol)
		return err
	})
	if err != nil {
		return false, err
	}
	_, ok := findOrder(orders, symbol, ref.ID)
	return ok, nil
}

func findOrder(orders []models.Order, symbol, id string) (models.Order, bool) {
	for _, o := range orders {
		if o.Symbol != "" && o.Symbol != symbol {
			continue
		}
		if o.Ref.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}
