// Package confluence turns per-timeframe analyses into LONG and SHORT scores,
// a signal band and a confirmation checklist.
package confluence

import (
	"fmt"
	"math"
	"sort"
	"time"

	"trade_guard/internal/errs"
	"trade_guard/internal/helper"
	"trade_guard/internal/models"
)

// Components are the point budgets of each score contribution. They sum to 100.
type Components struct {
	Trend    float64 `mapstructure:"trend"`
	Momentum float64 `mapstructure:"momentum"`
	Strength float64 `mapstructure:"strength"`
	Volume   float64 `mapstructure:"volume"`
}

func (c Components) total() float64 { return c.Trend + c.Momentum + c.Strength + c.Volume }

type Scorer struct {
	Weights       map[models.Timeframe]float64
	Components    Components
	DecayExponent float64
	ADXGate       float64
	ChecklistTF   models.Timeframe
	EntryTF       models.Timeframe
	LongRSI       [2]float64
	ShortRSI      [2]float64
	Now           func() time.Time
}

func DefaultWeights() map[models.Timeframe]float64 {
	return map[models.Timeframe]float64{
		models.TF1d:  40,
		models.TF4h:  30,
		models.TF1h:  20,
		models.TF15m: 10,
	}
}

func NewScorer() Scorer {
	return Scorer{
		Weights:       DefaultWeights(),
		Components:    Components{Trend: 40, Momentum: 25, Strength: 20, Volume: 15},
		DecayExponent: 1.5,
		ADXGate:       25,
		ChecklistTF:   models.TF4h,
		EntryTF:       models.TF1h,
		LongRSI:       [2]float64{40, 70},
		ShortRSI:      [2]float64{30, 60},
		Now:           time.Now,
	}
}

// Timeframes returns the configured timeframes, slowest first.
func (s Scorer) Timeframes() []models.Timeframe {
	return sortedSlowFirst(s.Weights)
}

func sortedSlowFirst(w map[models.Timeframe]float64) []models.Timeframe {
	tfs := make([]models.Timeframe, 0, len(w))
	for tf := range w {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() > tfs[j].Duration() })
	return tfs
}

// ValidateWeights rejects weightings where a faster timeframe alone could
// outvote all slower ones combined.
func ValidateWeights(w map[models.Timeframe]float64) error {
	const op = "confluence.ValidateWeights"
	if len(w) == 0 {
		return errs.E(errs.ConfigInvalid, op, "no timeframes configured")
	}
	slower := 0.0
	for i, tf := range sortedSlowFirst(w) {
		if tf.Duration() == 0 {
			return errs.E(errs.ConfigInvalid, op, "unknown timeframe %q", tf)
		}
		weight := w[tf]
		if weight <= 0 || math.IsNaN(weight) {
			return errs.E(errs.ConfigInvalid, op, "timeframe %s: weight %v must be positive", tf, weight)
		}
		if i > 0 && weight >= slower {
			return errs.E(errs.ConfigInvalid, op,
				"timeframe %s: weight %v must be below the slower timeframes' total %v", tf, weight, slower)
		}
		slower += weight
	}
	return nil
}

func (s Scorer) Validate() error {
	const op = "confluence.Validate"
	if err := ValidateWeights(s.Weights); err != nil {
		return err
	}
	if math.Abs(s.Components.total()-100) > 1e-9 {
		return errs.E(errs.ConfigInvalid, op, "component points sum to %v, want 100", s.Components.total())
	}
	if s.DecayExponent <= 0 {
		return errs.E(errs.ConfigInvalid, op, "decay exponent %v must be positive", s.DecayExponent)
	}
	if _, ok := s.Weights[s.ChecklistTF]; !ok {
		return errs.E(errs.ConfigInvalid, op, "checklist timeframe %s is not weighted", s.ChecklistTF)
	}
	if _, ok := s.Weights[s.EntryTF]; !ok {
		return errs.E(errs.ConfigInvalid, op, "entry timeframe %s is not weighted", s.EntryTF)
	}
	return nil
}

// BandFor maps a score to its fixed band.
func BandFor(score float64) models.Band {
	switch {
	case score >= 70:
		return models.BandStrong
	case score >= 60:
		return models.BandGood
	case score >= 50:
		return models.BandModerate
	}
	return models.BandNone
}

// Score evaluates both sides. Missing timeframes earn nothing but keep their
// weight in the denominator.
func (s Scorer) Score(symbol string, per map[models.Timeframe]models.TimeframeAnalysis, missing []models.Timeframe) models.ConfluenceResult {
	res := models.ConfluenceResult{
		Symbol:       symbol,
		PerTimeframe: per,
		Missing:      missing,
		EvaluatedAt:  s.now(),
	}
	res.LongScore = s.sideScore(models.Long, per)
	res.ShortScore = s.sideScore(models.Short, per)
	res.LongBand = BandFor(res.LongScore)
	res.ShortBand = BandFor(res.ShortScore)

	res.ChecklistSide = models.Long
	if res.ShortScore > res.LongScore {
		res.ChecklistSide = models.Short
	}
	res.Checklist = s.Checklist(res.ChecklistSide, per)
	return res
}

func (s Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s Scorer) sideScore(side models.Side, per map[models.Timeframe]models.TimeframeAnalysis) float64 {
	total := 0.0
	for _, w := range s.Weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	sign := side.Sign()
	var aligned, momentum, strength, volume float64
	for tf, w := range s.Weights {
		a, ok := per[tf]
		if !ok {
			continue
		}
		if a.Trend.Matches(side) {
			aligned += w
			strength += w * helper.Clamp(finite(a.Strength)/50, 0, 1)
		}
		momentum += w * helper.Clamp(sign*finite(a.MomentumScore)/100, 0, 1)
		volume += w * helper.Clamp(sign*finite(a.VolumeScore)/100, 0, 1)
	}
	f := aligned / total
	score := s.Components.Trend*math.Pow(f, s.DecayExponent) +
		s.Components.Momentum*momentum/total +
		s.Components.Strength*strength/total +
		s.Components.Volume*volume/total
	if math.IsNaN(score) {
		return 0
	}
	return helper.Clamp(score, 0, 100)
}

// finite maps NaN and ±Inf readings to 0 so they contribute nothing.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func trendItemName(tf models.Timeframe) string { return fmt.Sprintf("%s trend aligned", tf) }

func adxItemName(tf models.Timeframe) string { return fmt.Sprintf("%s ADX above gate", tf) }

// Checklist returns the ordered confirmation items for side.
func (s Scorer) Checklist(side models.Side, per map[models.Timeframe]models.TimeframeAnalysis) []models.CheckItem {
	sign := side.Sign()
	items := make([]models.CheckItem, 0, 12)
	add := func(name string, ok bool) {
		items = append(items, models.CheckItem{Name: name, Passed: ok})
	}

	for _, tf := range s.Timeframes() {
		a, ok := per[tf]
		add(trendItemName(tf), ok && a.Trend.Matches(side))
	}

	ctf, cOK := per[s.ChecklistTF]
	c := ctf.Snapshot
	add(fmt.Sprintf("%s price beyond EMAs", s.ChecklistTF),
		cOK && sign*(c.Close-c.EMAFast) > 0 && sign*(c.Close-c.EMASlow) > 0)

	rsiRange := s.LongRSI
	if side == models.Short {
		rsiRange = s.ShortRSI
	}
	add(fmt.Sprintf("%s RSI in range", s.ChecklistTF),
		cOK && c.RSI >= rsiRange[0] && c.RSI <= rsiRange[1])
	add(fmt.Sprintf("%s MACD confirms", s.ChecklistTF), cOK && sign*c.MACDHist > 0)
	add(adxItemName(s.ChecklistTF), cOK && c.ADX > s.ADXGate)

	etf, eOK := per[s.EntryTF]
	e := etf.Snapshot
	add(fmt.Sprintf("%s price vs VWAP", s.EntryTF), eOK && sign*(e.Close-e.VWAP) > 0)
	add(fmt.Sprintf("%s volume above average", s.EntryTF), eOK && e.VolRatio > 1.0)
	add(fmt.Sprintf("%s OBV confirms", s.EntryTF), eOK && float64(e.OBVTrend)*sign > 0)

	add(fmt.Sprintf("%s structure confirms", s.ChecklistTF), cOK && c.Structure.Matches(side))
	return items
}

// Decide returns the side to trade when the dominant band reaches minBand and
// the structural gates pass. Scores never override a failed gate.
func (s Scorer) Decide(res models.ConfluenceResult, minBand models.Band) (models.Side, bool) {
	side := res.ChecklistSide
	if !side.Valid() {
		return "", false
	}
	if res.Band(side).Rank() < minBand.Rank() || res.Band(side) == models.BandNone {
		return "", false
	}
	gates := map[string]bool{
		trendItemName(s.ChecklistTF): false,
		adxItemName(s.ChecklistTF):   false,
	}
	for _, item := range res.Checklist {
		if _, ok := gates[item.Name]; ok {
			gates[item.Name] = item.Passed
		}
	}
	for _, passed := range gates {
		if !passed {
			return "", false
		}
	}
	return side, true
}
