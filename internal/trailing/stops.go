package trailing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"trade_guard/internal/errs"
	"trade_guard/internal/helper"
	"trade_guard/internal/indicator"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

func (m *Machine) newBackoff(ctx context.Context, attempts int) backoff.BackOff {
	return NewPlacement(m.cfg, m.deps.Orders, m.log).policy(ctx, attempts)
}

func retryable(err error) bool {
	return errs.Is(err, errs.GatewayTransient) || errors.Is(err, context.DeadlineExceeded)
}

// retry runs fn with a per-call timeout, retrying transient failures.
func (m *Machine) retry(ctx context.Context, what string, fn func(context.Context) error) error {
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		err := fn(cctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, m.newBackoff(ctx, m.cfg.MaxRetries), func(err error, d time.Duration) {
		m.log.Debug("retrying", zap.String("call", what), zap.Duration("in", d), zap.Error(err))
	})
}

func (m *Machine) stopRequest(price float64) models.OrderRequest {
	st := m.Snapshot()
	return models.OrderRequest{
		Symbol:     st.Symbol,
		Side:       st.Side,
		Type:       models.OrderStop,
		Amount:     st.Contracts,
		StopPrice:  price,
		ReduceOnly: true,
		Leverage:   m.leverage,
	}
}

// coverEps absorbs float noise when comparing order size to position size.
const coverEps = 1e-9

// protects reports whether o is a reduce-only stop that closes the whole
// position and sits on the protective side of price. price <= 0 skips the
// price check.
func protects(o models.Order, st models.TrailState, price float64) bool {
	switch {
	case o.Symbol != "" && o.Symbol != st.Symbol:
		return false
	case o.Type != models.OrderStop || !o.ReduceOnly || o.Side != st.Side:
		return false
	case o.StopPrice <= 0:
		return false
	case o.Amount+coverEps < st.Contracts:
		return false
	case price > 0 && st.Side.Sign()*(price-o.StopPrice) <= 0:
		return false
	}
	return true
}

// pickStop chooses the resting stop to adopt: the tracked order when it
// still protects, otherwise the tightest protecting stop.
func pickStop(orders []models.Order, st models.TrailState, price float64) (models.Order, bool) {
	var best models.Order
	var found bool
	for _, o := range orders {
		if !protects(o, st, price) {
			continue
		}
		if !st.StopOrder.Empty() && o.Ref.ID == st.StopOrder.ID {
			return o, true
		}
		if !found || st.Side.Sign()*(o.StopPrice-best.StopPrice) > 0 {
			best, found = o, true
		}
	}
	return best, found
}

func (m *Machine) openOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	err := m.retry(ctx, "open orders", func(cctx context.Context) error {
		list, err := m.deps.Orders.OpenOrders(cctx, m.state.Symbol)
		out = list
		return err
	})
	return out, err
}

// bootstrap makes sure a protective stop exists before any trailing happens.
// A resting stop is adopted only when it covers the position and is at least
// as tight as the current level; a looser one is superseded, never followed.
func (m *Machine) bootstrap(ctx context.Context) error {
	const op = "trailing.bootstrap"
	st := m.Snapshot()

	orders, err := m.openOrders(ctx)
	if err != nil {
		return m.gap(ctx, op, st.CurrentStop, err)
	}
	price, err := m.price(ctx)
	if err != nil {
		m.log.Warn("no price for stop adoption, skipping side check", zap.Error(err))
		price = 0
	}

	o, ok := pickStop(orders, st, price)
	if ok && !st.Improves(o.StopPrice) && o.StopPrice != st.CurrentStop {
		m.log.Warn("resting stop is looser than the target, replacing it",
			zap.String("order", o.Ref.ID), zap.Float64("resting", o.StopPrice), zap.Float64("stop", st.CurrentStop))
		return m.supersede(ctx, op, o.Ref)
	}
	if ok {
		m.update(func(s *models.TrailState) {
			s.StopOrder = o.Ref
			s.CurrentStop = o.StopPrice
		})
		m.log.Info("adopted protective stop", zap.String("order", o.Ref.ID), zap.Float64("stop", o.StopPrice))
		return nil
	}

	ref, err := m.placeStop(ctx, st.CurrentStop, m.cfg.MaxRetries)
	if err != nil {
		return m.gap(ctx, op, st.CurrentStop, err)
	}
	m.update(func(s *models.TrailState) { s.StopOrder = ref })
	m.log.Info("placed protective stop", zap.String("order", ref.ID), zap.Float64("stop", st.CurrentStop))
	return nil
}

// supersede places the stop at the current level first, then removes the
// looser one. Until the new stop is confirmed the old one keeps protecting.
func (m *Machine) supersede(ctx context.Context, op string, loose models.OrderRef) error {
	st := m.Snapshot()
	ref, err := m.placeStop(ctx, st.CurrentStop, m.cfg.MaxRetries)
	if err != nil {
		return m.gap(ctx, op, st.CurrentStop, err)
	}
	m.update(func(s *models.TrailState) { s.StopOrder = ref })
	m.log.Info("placed protective stop", zap.String("order", ref.ID), zap.Float64("stop", st.CurrentStop))

	err = m.retry(ctx, "cancel loose stop", func(cctx context.Context) error {
		return m.deps.Orders.CancelOrder(cctx, st.Symbol, loose)
	})
	if err != nil {
		m.log.Warn("looser stop left on the book", zap.String("order", loose.ID), zap.Error(err))
	}
	return nil
}

// placeStop submits a reduce-only stop at price and, when enabled, confirms
// it is resting on the book.
func (m *Machine) placeStop(ctx context.Context, price float64, attempts int) (models.OrderRef, error) {
	return NewPlacement(m.cfg, m.deps.Orders, m.log).PlaceN(ctx, m.stopRequest(price), attempts)
}

// replace moves the protective stop: cancel the old one, then place the new
// one. The position is never knowingly left without a stop.
func (m *Machine) replace(ctx context.Context, newStop float64) error {
	const op = "trailing.replace"
	st := m.Snapshot()
	old := st.StopOrder

	if !old.Empty() {
		err := m.retry(ctx, "cancel", func(cctx context.Context) error {
			return m.deps.Orders.CancelOrder(cctx, st.Symbol, old)
		})
		if err != nil {
			if !m.stopGone(ctx, old) {
				m.log.Warn("cancel failed, existing stop still protects",
					zap.String("order", old.ID), zap.Float64("stop", st.CurrentStop), zap.Error(err))
				return errs.Wrap(errs.GatewayTransient, op, err)
			}
			m.log.Warn("cancel reported failure but the stop is gone", zap.String("order", old.ID), zap.Error(err))
		}
	}

	ref, err := m.placeStop(ctx, newStop, m.cfg.MaxRetries)
	if err == nil {
		m.update(func(s *models.TrailState) {
			s.CurrentStop = newStop
			s.StopOrder = ref
			s.LastMovedAt = m.now()
			s.Moves++
		})
		m.log.Info("stop moved",
			zap.Float64("from", st.CurrentStop), zap.Float64("to", newStop), zap.String("order", ref.ID))
		m.notify(ctx, models.EventStopMoved, m.Snapshot())
		return nil
	}

	m.log.Error("new stop rejected, restoring previous level",
		zap.Float64("stop", newStop), zap.Error(err))
	restored, rerr := m.placeStop(ctx, st.CurrentStop, 1)
	if rerr != nil {
		return m.gap(ctx, op, st.CurrentStop, errors.Join(err, rerr))
	}
	m.update(func(s *models.TrailState) { s.StopOrder = restored })
	return errs.Wrap(errs.GatewayTransient, op, err)
}

// stopGone reports whether ref is confirmed absent from the open orders.
func (m *Machine) stopGone(ctx context.Context, ref models.OrderRef) bool {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	orders, err := m.deps.Orders.OpenOrders(cctx, m.state.Symbol)
	if err != nil {
		return false
	}
	_, ok := findOrder(orders, m.state.Symbol, ref.ID)
	return !ok
}

// gap halts the machine and escalates to the operator.
func (m *Machine) gap(ctx context.Context, op string, stop float64, cause error) error {
	m.update(func(s *models.TrailState) { s.Halted = true })
	st := m.Snapshot()
	m.log.Error("PROTECTION GAP: no confirmed protective stop",
		logger.Alert(),
		zap.Float64("stop", stop),
		zap.Float64("contracts", st.Contracts),
		zap.Error(cause))
	m.notify(ctx, models.EventProtectionGap, st)
	return errs.Wrap(errs.ProtectionGap, op, cause)
}

func (m *Machine) close(ctx context.Context) {
	st := m.Snapshot()
	exit := st.LastPrice
	tctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	if t, err := m.deps.Market.Ticker(tctx, st.Symbol); err == nil && t.Last > 0 {
		exit = t.Last
	}
	cancel()
	if exit <= 0 {
		exit = st.CurrentStop
	}

	m.update(func(s *models.TrailState) {
		s.Phase = models.PhaseClosed
		s.LastPrice = exit
	})
	st = m.Snapshot()
	entry := m.journalEntry(st, exit)
	m.log.Info("position closed",
		zap.Float64("exit", exit), zap.Float64("pnl", entry.PnL), zap.Int("moves", st.Moves))

	if m.deps.Journal != nil {
		jctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		if err := m.deps.Journal.Append(jctx, entry); err != nil {
			m.log.Error("journal append failed", zap.Error(err))
		}
		cancel()
	}
	m.notify(ctx, models.EventClosed, entry)
}

func (m *Machine) journalEntry(st models.TrailState, exit float64) models.JournalEntry {
	qty := st.Contracts * st.ContractSize
	fees := (st.Entry + exit) * qty * m.cfg.FeeRatePerSide
	pnl := st.Side.Sign()*(exit-st.Entry)*qty - fees
	pct := 0.0
	if margin := st.Entry * qty / float64(max(m.leverage, 1)); margin > 0 {
		pct = pnl / margin * 100
	}
	closed := m.now()
	return models.JournalEntry{
		Symbol:       st.Symbol,
		Side:         st.Side,
		Entry:        st.Entry,
		Exit:         exit,
		Stop:         st.CurrentStop,
		Contracts:    st.Contracts,
		ContractSize: st.ContractSize,
		PnL:          pnl,
		PnLPct:       pct,
		Fees:         fees,
		EntryScore:   m.entryScore,
		HoldTime:     closed.Sub(st.OpenedAt),
		OpenedAt:     st.OpenedAt,
		ClosedAt:     closed,
	}
}

func latestATR(bars []models.Bar, period int) (float64, error) {
	series, err := indicator.ATR(bars, period)
	if err != nil {
		return 0, err
	}
	v, ok := indicator.Last(series)
	if !ok || v <= 0 {
		return 0, errs.E(errs.DataInsufficient, "trailing.atr", "no positive ATR in %d bars", len(bars))
	}
	return v, nil
}

// candidateStop trails multiple ATRs behind price, rounded away from price.
func candidateStop(side models.Side, price, atr, multiple, tick float64) float64 {
	c := price - side.Sign()*multiple*atr
	if math.IsNaN(c) {
		return c
	}
	return helper.RoundStop(c, tick, side)
}
