// Package sizing computes risk-bounded position sizes in contracts, with
// fee-aware take-profit projections.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"trade_guard/internal/errs"
	"trade_guard/internal/helper"
	"trade_guard/internal/models"
)

const MaxLeverage = 100

type TakeProfit struct {
	RMultiple    float64 `mapstructure:"r_multiple" validate:"gt=0"`
	SizeFraction float64 `mapstructure:"size_fraction" validate:"gt=0,lte=1"`
}

// Config holds the account-level risk policy.
type Config struct {
	RiskFraction      float64      `mapstructure:"risk_fraction" validate:"gt=0,lte=0.05"`
	MarginCapFraction float64      `mapstructure:"margin_cap_fraction" validate:"gte=0.5,lte=0.95"`
	FeeRatePerSide    float64      `mapstructure:"fee_rate_per_side" validate:"gte=0,lt=0.01"`
	TakeProfits       []TakeProfit `mapstructure:"take_profits" validate:"min=1,dive"`
	MinRewardRisk     float64      `mapstructure:"min_reward_risk" validate:"gte=0"`
}

func DefaultTakeProfits() []TakeProfit {
	return []TakeProfit{
		{RMultiple: 2.5, SizeFraction: 0.5},
		{RMultiple: 4, SizeFraction: 0.3},
		{RMultiple: 6, SizeFraction: 0.2},
	}
}

func DefaultConfig() Config {
	return Config{
		RiskFraction:      0.02,
		MarginCapFraction: 0.90,
		FeeRatePerSide:    0.0006,
		TakeProfits:       DefaultTakeProfits(),
		MinRewardRisk:     2.0,
	}
}

func (c Config) Validate() error {
	const op = "sizing.Config"
	if !(c.RiskFraction > 0 && c.RiskFraction <= 0.05) {
		return errs.E(errs.ConfigInvalid, op, "risk fraction %v outside (0, 0.05]", c.RiskFraction)
	}
	if !(c.MarginCapFraction >= 0.5 && c.MarginCapFraction <= 0.95) {
		return errs.E(errs.ConfigInvalid, op, "margin cap fraction %v outside [0.5, 0.95]", c.MarginCapFraction)
	}
	if c.FeeRatePerSide < 0 || c.FeeRatePerSide >= 0.01 {
		return errs.E(errs.ConfigInvalid, op, "fee rate %v outside [0, 0.01)", c.FeeRatePerSide)
	}
	if len(c.TakeProfits) == 0 {
		return errs.E(errs.ConfigInvalid, op, "no take-profit levels")
	}
	sum := 0.0
	for i, tp := range c.TakeProfits {
		if tp.RMultiple <= 0 || tp.SizeFraction <= 0 {
			return errs.E(errs.ConfigInvalid, op, "take-profit %d: r=%v fraction=%v", i+1, tp.RMultiple, tp.SizeFraction)
		}
		sum += tp.SizeFraction
	}
	if math.Abs(sum-1) > 1e-9 {
		return errs.E(errs.ConfigInvalid, op, "take-profit fractions sum to %v, want 1", sum)
	}
	return nil
}

// Request is one sizing question. Market must come from live exchange metadata.
type Request struct {
	Symbol   string
	Side     models.Side
	Balance  float64
	Entry    float64
	Stop     float64
	Leverage int
	Market   models.MarketMeta
}

type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) (*Sizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tps := append([]TakeProfit(nil), cfg.TakeProfits...)
	sort.SliceStable(tps, func(i, j int) bool { return tps[i].RMultiple < tps[j].RMultiple })
	cfg.TakeProfits = tps
	return &Sizer{cfg: cfg}, nil
}

func (s *Sizer) Config() Config { return s.cfg }

func (s *Sizer) validate(r Request) error {
	const op = "sizing.Size"
	if !r.Side.Valid() {
		return errs.E(errs.ConfigInvalid, op, "side %q", r.Side)
	}
	if r.Market.ContractSize <= 0 || math.IsNaN(r.Market.ContractSize) {
		return errs.E(errs.ConfigInvalid, op, "%s: contract size missing from market metadata", r.Symbol)
	}
	if r.Entry <= 0 {
		return errs.E(errs.ConfigInvalid, op, "entry %v must be positive", r.Entry)
	}
	if r.Stop <= 0 || r.Stop == r.Entry {
		return errs.E(errs.ConfigInvalid, op, "stop %v invalid for entry %v", r.Stop, r.Entry)
	}
	if r.Side.Sign()*(r.Entry-r.Stop) <= 0 {
		return errs.E(errs.ConfigInvalid, op, "%s stop %v is not on the protective side of entry %v", r.Side, r.Stop, r.Entry)
	}
	if r.Leverage < 1 || r.Leverage > MaxLeverage {
		return errs.E(errs.ConfigInvalid, op, "leverage %d outside [1, %d]", r.Leverage, MaxLeverage)
	}
	if r.Market.MaxLeverage > 0 && r.Leverage > r.Market.MaxLeverage {
		return errs.E(errs.ConfigInvalid, op, "leverage %d above exchange max %d", r.Leverage, r.Market.MaxLeverage)
	}
	if r.Balance <= 0 {
		return errs.E(errs.SizingInfeasible, op, "insufficient balance %v", r.Balance)
	}
	return nil
}

// Size computes the contract count bound by both the risk budget and the margin cap.
func (s *Sizer) Size(r Request) (models.PositionPlan, error) {
	const op = "sizing.Size"
	if err := s.validate(r); err != nil {
		return models.PositionPlan{}, err
	}
	cs := r.Market.ContractSize
	lev := float64(r.Leverage)

	riskAmount := r.Balance * s.cfg.RiskFraction
	stopDist := math.Abs(r.Entry - r.Stop)
	byRisk := riskAmount / (stopDist * cs)
	marginCap := r.Balance * s.cfg.MarginCapFraction
	byMargin := marginCap * lev / (r.Entry * cs)

	contracts := math.Min(byRisk, byMargin)
	if r.Market.MaxMarketSize > 0 && contracts > r.Market.MaxMarketSize {
		contracts = r.Market.MaxMarketSize
	}
	contracts = helper.FloorToLot(contracts, r.Market.LotSize)
	if contracts <= 0 {
		return models.PositionPlan{}, errs.E(errs.SizingInfeasible, op,
			"insufficient balance: %.4f buys no contract (risk bound %.4f, margin bound %.4f)", r.Balance, byRisk, byMargin)
	}
	if r.Market.MinSize > 0 && contracts < r.Market.MinSize {
		return models.PositionPlan{}, errs.E(errs.SizingInfeasible, op,
			"size %v below exchange minimum %v", contracts, r.Market.MinSize)
	}

	notional := contracts * r.Entry * cs
	margin := notional / lev
	if margin > marginCap+1e-9 {
		return models.PositionPlan{}, errs.E(errs.SizingInfeasible, op,
			"margin %.4f exceeds cap %.4f", margin, marginCap)
	}

	plan := models.PositionPlan{
		Symbol:         r.Symbol,
		Side:           r.Side,
		Entry:          r.Entry,
		Stop:           r.Stop,
		Contracts:      contracts,
		Leverage:       r.Leverage,
		ContractSize:   cs,
		Notional:       notional,
		MarginRequired: margin,
		RiskAmount:     riskAmount,
		ActualRisk:     contracts * stopDist * cs,
		RoundTripFees:  notional * s.cfg.FeeRatePerSide * 2,
	}
	plan.TakeProfits = s.takeProfits(plan, r.Market.TickSize)
	plan.Warnings = s.warnings(plan)
	return plan, nil
}

func (s *Sizer) takeProfits(plan models.PositionPlan, tick float64) []models.TakeProfitLevel {
	sign := plan.Side.Sign()
	dist := plan.StopDistance()
	out := make([]models.TakeProfitLevel, 0, len(s.cfg.TakeProfits))
	for _, tp := range s.cfg.TakeProfits {
		price := plan.Entry + sign*dist*tp.RMultiple
		if tick > 0 {
			price = math.Round(price/tick) * tick
		}
		gross := dist * tp.RMultiple * plan.Contracts * tp.SizeFraction * plan.ContractSize
		fees := plan.Notional * s.cfg.FeeRatePerSide * 2 * tp.SizeFraction
		out = append(out, models.TakeProfitLevel{
			RMultiple:    tp.RMultiple,
			Price:        price,
			SizeFraction: tp.SizeFraction,
			GrossPnL:     gross,
			Fees:         fees,
			NetPnL:       gross - fees,
		})
	}
	return out
}

func (s *Sizer) warnings(plan models.PositionPlan) []string {
	if len(plan.TakeProfits) == 0 {
		return nil
	}
	var out []string
	first := plan.TakeProfits[0]
	if first.NetPnL <= 0 {
		out = append(out, fmt.Sprintf("net P&L at TP1 is %.4f: fees exceed the edge", first.NetPnL))
	}
	if s.cfg.MinRewardRisk > 0 && first.RMultiple < s.cfg.MinRewardRisk {
		out = append(out, fmt.Sprintf("TP1 reward:risk %.2f below minimum %.2f", first.RMultiple, s.cfg.MinRewardRisk))
	}
	return out
}

// NetPnLAt is the profit of closing the whole plan at exitPrice, after
// taker fees on both legs.
func (s *Sizer) NetPnLAt(plan models.PositionPlan, exitPrice float64) float64 {
	qty := plan.Contracts * plan.ContractSize
	gross := plan.Side.Sign() * (exitPrice - plan.Entry) * qty
	fees := (plan.Entry + exitPrice) * qty * s.cfg.FeeRatePerSide
	return gross - fees
}

// ATRStop places the initial stop mult ATRs away from entry on the protective side.
func ATRStop(entry, atr, mult float64, side models.Side) (float64, error) {
	const op = "sizing.ATRStop"
	if !(atr > 0) {
		return 0, errs.E(errs.DataInsufficient, op, "atr %v unavailable", atr)
	}
	if mult <= 0 {
		return 0, errs.E(errs.ConfigInvalid, op, "multiple %v must be positive", mult)
	}
	stop := entry - side.Sign()*mult*atr
	if stop <= 0 {
		return 0, errs.E(errs.ConfigInvalid, op, "stop %v below zero for entry %v", stop, entry)
	}
	return stop, nil
}

// SplitContracts divides the plan's contracts across its take-profit levels,
// floored to lot. The last level takes the remainder; levels that round to
// zero get nothing.
func SplitContracts(plan models.PositionPlan, lot float64) []float64 {
	out := make([]float64, len(plan.TakeProfits))
	left := plan.Contracts
	for i, tp := range plan.TakeProfits {
		if i == len(plan.TakeProfits)-1 {
			out[i] = helper.FloorToLot(left, lot)
			break
		}
		sz := helper.FloorToLot(plan.Contracts*tp.SizeFraction, lot)
		if sz > left {
			sz = left
		}
		out[i] = sz
		left -= sz
	}
	return out
}
