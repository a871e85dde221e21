// Package trailing supervises one open position: it keeps a protective stop
// on the exchange and advances it behind price once the trade is far enough
// in profit.
package trailing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade_guard/internal/analysis"
	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

type MarketData interface {
	Ticker(ctx context.Context, symbol string) (models.Ticker, error)
	Candles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

type Positions interface {
	Positions(ctx context.Context, symbols ...string) ([]models.Position, error)
}

type Orders interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderRef, error)
	CancelOrder(ctx context.Context, symbol string, ref models.OrderRef) error
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

// Notifier must not block.
type Notifier interface {
	Notify(ctx context.Context, kind models.EventKind, payload any)
}

type Journal interface {
	Append(ctx context.Context, e models.JournalEntry) error
}

type StatusReporter interface {
	ReportTrail(st models.TrailState)
}

type Config struct {
	PollInterval     time.Duration    `mapstructure:"poll_interval" validate:"gt=0"`
	CallTimeout      time.Duration    `mapstructure:"call_timeout" validate:"gt=0"`
	ActivationR      float64          `mapstructure:"activation_r" validate:"gt=0"`
	TrailATRMultiple float64          `mapstructure:"trail_atr_multiple" validate:"gt=0"`
	ATRTimeframe     models.Timeframe `mapstructure:"atr_timeframe" validate:"required"`
	ATRPeriod        int              `mapstructure:"atr_period" validate:"gt=1"`
	CandleLimit      int              `mapstructure:"candle_limit" validate:"gtfield=ATRPeriod"`
	MaxRetries       int              `mapstructure:"max_retries" validate:"gte=1"`
	BackoffInitial   time.Duration    `mapstructure:"backoff_initial" validate:"gt=0"`
	BackoffMax       time.Duration    `mapstructure:"backoff_max" validate:"gtefield=BackoffInitial"`
	Adaptive         bool             `mapstructure:"adaptive"`
	VerifyPlacement  bool             `mapstructure:"verify_placement"`
	FeeRatePerSide   float64          `mapstructure:"fee_rate_per_side" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:     10 * time.Second,
		CallTimeout:      10 * time.Second,
		ActivationR:      1.5,
		TrailATRMultiple: 1.0,
		ATRTimeframe:     models.TF15m,
		ATRPeriod:        14,
		CandleLimit:      100,
		MaxRetries:       5,
		BackoffInitial:   500 * time.Millisecond,
		BackoffMax:       5 * time.Second,
		VerifyPlacement:  true,
		FeeRatePerSide:   0.0006,
	}
}

// MaxIteration bounds how long one iteration can run once started: the
// retried reads, a bootstrap placement, a cancel with its confirmation, a
// full placement, the one-shot restore and the close-out calls. Shutdown must
// wait at least this long or it can land between a cancel and a place.
func (c Config) MaxIteration() time.Duration {
	call := c.CallTimeout
	retried := time.Duration(c.MaxRetries) * (call + c.BackoffMax)
	attempt := 4*call + c.BackoffMax // recheck, cancel unconfirmed, place, verify
	place := time.Duration(c.MaxRetries) * attempt

	reads := 5 * retried // open orders, two tickers, position, candles
	bootstrap := place + retried
	replace := retried + call + place + attempt
	return reads + bootstrap + replace + 2*call
}

// Target is the position handed to a machine at start.
type Target struct {
	Symbol       string
	Side         models.Side
	Entry        float64
	Stop         float64
	Contracts    float64
	ContractSize float64
	TickSize     float64
	Leverage     int
	EntryScore   float64
	OpenedAt     time.Time
}

type Deps struct {
	Market    MarketData
	Positions Positions
	Orders    Orders
	Notifier  Notifier
	Journal   Journal
	Status    StatusReporter
}

type Machine struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
	now  func() time.Time

	tick       float64
	leverage   int
	entryScore float64

	mu           sync.RWMutex
	state        models.TrailState
	bootstrapped bool
}

func New(cfg Config, t Target, deps Deps, log *logger.Logger) (*Machine, error) {
	const op = "trailing.New"
	switch {
	case !t.Side.Valid():
		return nil, errs.E(errs.ConfigInvalid, op, "side %q", t.Side)
	case t.Entry <= 0 || t.Stop <= 0:
		return nil, errs.E(errs.ConfigInvalid, op, "entry %v / stop %v must be positive", t.Entry, t.Stop)
	case t.Side.Sign()*(t.Entry-t.Stop) <= 0:
		return nil, errs.E(errs.ConfigInvalid, op, "%s stop %v is not protective for entry %v", t.Side, t.Stop, t.Entry)
	case t.ContractSize <= 0:
		return nil, errs.E(errs.ConfigInvalid, op, "contract size missing")
	case cfg.PollInterval <= 0 || cfg.CallTimeout <= 0 || cfg.MaxRetries < 1:
		return nil, errs.E(errs.ConfigInvalid, op, "poll interval, call timeout and retries must be positive")
	case cfg.ActivationR <= 0 || cfg.TrailATRMultiple <= 0:
		return nil, errs.E(errs.ConfigInvalid, op, "activation %v / multiple %v must be positive", cfg.ActivationR, cfg.TrailATRMultiple)
	case deps.Market == nil || deps.Positions == nil || deps.Orders == nil:
		return nil, errs.E(errs.ConfigInvalid, op, "market, positions and orders are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	opened := t.OpenedAt
	if opened.IsZero() {
		opened = time.Now()
	}
	m := &Machine{
		cfg:        cfg,
		deps:       deps,
		log:        log.With(zap.String("symbol", t.Symbol), zap.String("side", string(t.Side))),
		now:        time.Now,
		tick:       t.TickSize,
		leverage:   t.Leverage,
		entryScore: t.EntryScore,
		state: models.TrailState{
			Symbol:           t.Symbol,
			Side:             t.Side,
			Entry:            t.Entry,
			InitialStop:      t.Stop,
			CurrentStop:      t.Stop,
			Contracts:        t.Contracts,
			ContractSize:     t.ContractSize,
			ActivationR:      cfg.ActivationR,
			TrailATRMultiple: cfg.TrailATRMultiple,
			Phase:            models.PhaseUnarmed,
			HighWater:        t.Entry,
			LowWater:         t.Entry,
			OpenedAt:         opened,
		},
	}
	return m, nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() models.TrailState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) Halted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Halted
}

// ClearHalt re-enables a machine stopped by a protection gap. The next run
// re-verifies the protective stop before doing anything else.
func (m *Machine) ClearHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Halted = false
	m.bootstrapped = false
}

func (m *Machine) update(fn func(st *models.TrailState)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
}

// Run polls until the position is flat, ctx is cancelled or a protection gap
// halts the machine. Cancellation is observed only between iterations.
func (m *Machine) Run(ctx context.Context) error {
	const op = "trailing.Run"
	st := m.Snapshot()
	if st.Halted {
		return errs.E(errs.ProtectionGap, op, "%s halted by an earlier protection gap; clear it first", st.Symbol)
	}
	if st.Phase == models.PhaseClosed {
		return nil
	}
	m.log.Info("trailing started",
		zap.Float64("entry", st.Entry),
		zap.Float64("stop", st.CurrentStop),
		zap.Float64("activation_r", m.cfg.ActivationR))

	for {
		closed, err := m.iterate(ctx)
		m.report()
		switch {
		case err != nil && errs.Is(err, errs.ProtectionGap):
			return err
		case err != nil:
			m.log.Warn("iteration failed", zap.Error(err))
		case closed:
			return nil
		}

		wait := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			m.log.Info("trailing stopped", zap.Float64("stop", m.Snapshot().CurrentStop))
			return ctx.Err()
		case <-wait.C:
		}
	}
}

func (m *Machine) report() {
	if m.deps.Status != nil {
		m.deps.Status.ReportTrail(m.Snapshot())
	}
}

func (m *Machine) notify(ctx context.Context, kind models.EventKind, payload any) {
	if m.deps.Notifier != nil {
		m.deps.Notifier.Notify(ctx, kind, payload)
	}
}

// iterate is one unit of work. It runs detached from ctx cancellation so a
// stop signal never lands between cancelling and replacing an order.
func (m *Machine) iterate(parent context.Context) (bool, error) {
	ctx := context.WithoutCancel(parent)

	if !m.bootstrapped {
		if err := m.bootstrap(ctx); err != nil {
			return false, err
		}
		m.bootstrapped = true
	}

	pos, err := m.position(ctx)
	if err != nil {
		return false, err
	}
	if pos.Contracts <= 0 {
		m.close(ctx)
		return true, nil
	}
	if pos.Contracts != m.state.Contracts {
		m.update(func(st *models.TrailState) { st.Contracts = pos.Contracts })
	}

	price, err := m.price(ctx)
	if err != nil {
		return false, err
	}

	var armedNow bool
	m.update(func(st *models.TrailState) {
		if price > st.HighWater {
			st.HighWater = price
		}
		if price < st.LowWater {
			st.LowWater = price
		}
		st.LastPrice = price
		st.LastR = st.RMultiple(price)
		if st.Phase == models.PhaseUnarmed && st.LastR >= st.ActivationR {
			st.Phase = models.PhaseArmed
			armedNow = true
		}
	})
	if armedNow {
		st := m.Snapshot()
		m.log.Info("trailing armed", zap.Float64("price", price), zap.Float64("r", st.LastR))
		m.notify(ctx, models.EventTrailArmed, st)
	}
	if !m.Snapshot().Armed() {
		return false, nil
	}
	return false, m.trail(ctx, price)
}

func (m *Machine) position(ctx context.Context) (models.Position, error) {
	var out models.Position
	st := m.Snapshot()
	err := m.retry(ctx, "positions", func(cctx context.Context) error {
		list, err := m.deps.Positions.Positions(cctx, st.Symbol)
		if err != nil {
			return err
		}
		out = models.Position{Symbol: st.Symbol, Side: st.Side}
		for _, p := range list {
			if p.Symbol == st.Symbol && p.Side == st.Side {
				out = p
				break
			}
		}
		return nil
	})
	return out, err
}

func (m *Machine) price(ctx context.Context) (float64, error) {
	const op = "trailing.price"
	var px float64
	st := m.Snapshot()
	err := m.retry(ctx, "ticker", func(cctx context.Context) error {
		t, err := m.deps.Market.Ticker(cctx, st.Symbol)
		if err != nil {
			return err
		}
		px = t.Last
		return nil
	})
	if err != nil {
		return 0, err
	}
	if px <= 0 {
		return 0, errs.E(errs.GatewayTransient, op, "ticker returned price %v", px)
	}
	return px, nil
}

// trail computes the ATR candidate and replaces the stop when it is strictly better.
func (m *Machine) trail(ctx context.Context, price float64) error {
	st := m.Snapshot()
	var bars []models.Bar
	err := m.retry(ctx, "candles", func(cctx context.Context) error {
		b, err := m.deps.Market.Candles(cctx, st.Symbol, m.cfg.ATRTimeframe, m.cfg.CandleLimit)
		bars = b
		return err
	})
	if err != nil {
		return err
	}

	atr, err := latestATR(bars, m.cfg.ATRPeriod)
	if err != nil {
		m.log.Debug("no ATR this iteration", zap.Error(err))
		return nil
	}

	multiple := m.cfg.TrailATRMultiple
	if m.cfg.Adaptive {
		if a, err := analysis.Analyze(m.cfg.ATRTimeframe, bars, analysis.DefaultParams()); err == nil {
			multiple = AdaptiveMultiple(st.Side, a)
		}
	}

	candidate := candidateStop(st.Side, price, atr, multiple, m.tick)
	if !st.Improves(candidate) || st.Side.Sign()*(price-candidate) <= 0 {
		return nil
	}
	return m.replace(ctx, candidate)
}
