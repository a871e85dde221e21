// Package analysis classifies one timeframe of bars into a trend with
// strength, momentum and volume readings.
package analysis

import (
	"math"

	"trade_guard/internal/errs"
	"trade_guard/internal/helper"
	"trade_guard/internal/indicator"
	"trade_guard/internal/models"
)

type Params struct {
	MinBars       int `mapstructure:"min_bars" validate:"gte=20"`
	EMAFast       int `mapstructure:"ema_fast" validate:"gt=0"`
	EMASlow       int `mapstructure:"ema_slow" validate:"gtfield=EMAFast"`
	EMATrend      int `mapstructure:"ema_trend" validate:"gtfield=EMASlow"`
	SlopeLookback int `mapstructure:"slope_lookback" validate:"gt=0"`

	RSIPeriod   int     `mapstructure:"rsi_period" validate:"gt=1"`
	MACDFast    int     `mapstructure:"macd_fast" validate:"gt=0"`
	MACDSlow    int     `mapstructure:"macd_slow" validate:"gtfield=MACDFast"`
	MACDSignal  int     `mapstructure:"macd_signal" validate:"gt=0"`
	StochPeriod int     `mapstructure:"stoch_period" validate:"gt=1"`
	StochK      int     `mapstructure:"stoch_k" validate:"gt=0"`
	StochD      int     `mapstructure:"stoch_d" validate:"gt=0"`
	ADXPeriod   int     `mapstructure:"adx_period" validate:"gt=1"`
	ATRPeriod   int     `mapstructure:"atr_period" validate:"gt=0"`
	BBPeriod    int     `mapstructure:"bb_period" validate:"gt=1"`
	BBStdDev    float64 `mapstructure:"bb_stddev" validate:"gt=0"`

	VolumePeriod    int `mapstructure:"volume_period" validate:"gt=0"`
	OBVSlope        int `mapstructure:"obv_slope" validate:"gt=0"`
	StructureWindow int `mapstructure:"structure_window" validate:"gt=1"`

	ChoppyADX  float64 `mapstructure:"choppy_adx" validate:"gte=0,lte=100"`
	Overbought float64 `mapstructure:"overbought" validate:"gtfield=Oversold,lte=100"`
	Oversold   float64 `mapstructure:"oversold" validate:"gte=0"`
}

func DefaultParams() Params {
	return Params{
		MinBars:         60,
		EMAFast:         20,
		EMASlow:         50,
		EMATrend:        100,
		SlopeLookback:   3,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		StochPeriod:     14,
		StochK:          3,
		StochD:          3,
		ADXPeriod:       14,
		ATRPeriod:       14,
		BBPeriod:        20,
		BBStdDev:        2,
		VolumePeriod:    20,
		OBVSlope:        5,
		StructureWindow: 10,
		ChoppyADX:       20,
		Overbought:      80,
		Oversold:        20,
	}
}

// required is the history every indicator below needs to have a defined last value.
func (p Params) required() int {
	need := p.MinBars
	for _, n := range []int{
		p.EMASlow + p.SlopeLookback,
		p.MACDSlow + p.MACDSignal - 1,
		2 * p.ADXPeriod,
		2*p.StochPeriod + p.StochK + p.StochD - 2,
		2 * p.StructureWindow,
		p.BBPeriod,
		p.VolumePeriod + 1,
	} {
		if n > need {
			need = n
		}
	}
	return need
}

// Analyze evaluates the latest state of one timeframe.
func Analyze(tf models.Timeframe, bars []models.Bar, p Params) (models.TimeframeAnalysis, error) {
	const op = "analysis.Analyze"
	out := models.TimeframeAnalysis{Timeframe: tf, Trend: models.TrendRange}

	if need := p.required(); len(bars) < need {
		return out, errs.E(errs.DataInsufficient, op, "%s: have %d bars, need %d", tf, len(bars), need)
	}
	closes := indicator.Closes(bars)

	emaFast, err := indicator.EMA(closes, p.EMAFast)
	if err != nil {
		return out, err
	}
	emaSlow, err := indicator.EMA(closes, p.EMASlow)
	if err != nil {
		return out, err
	}
	emaTrend := math.NaN()
	if len(closes) >= p.EMATrend {
		if s, err := indicator.EMA(closes, p.EMATrend); err == nil {
			emaTrend = indicator.At(s, 0)
		}
	}
	rsi, err := indicator.RSI(closes, p.RSIPeriod)
	if err != nil {
		return out, err
	}
	stoch, err := indicator.StochRSI(closes, p.StochPeriod, p.StochK, p.StochD)
	if err != nil {
		return out, err
	}
	macd, err := indicator.MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return out, err
	}
	adx, err := indicator.ADX(bars, p.ADXPeriod)
	if err != nil {
		return out, err
	}
	atr, err := indicator.ATR(bars, p.ATRPeriod)
	if err != nil {
		return out, err
	}
	bb, err := indicator.Bollinger(closes, p.BBPeriod, p.BBStdDev)
	if err != nil {
		return out, err
	}
	obv, err := indicator.OBV(bars)
	if err != nil {
		return out, err
	}
	vwap, err := indicator.VWAP(bars)
	if err != nil {
		return out, err
	}
	volRatio, err := indicator.VolumeRatio(bars, p.VolumePeriod)
	if err != nil {
		return out, err
	}

	snap := models.Snapshot{
		Close:      indicator.At(closes, 0),
		EMAFast:    indicator.At(emaFast, 0),
		EMASlow:    indicator.At(emaSlow, 0),
		EMATrend:   emaTrend,
		RSI:        indicator.At(rsi, 0),
		MACD:       indicator.At(macd.Line, 0),
		MACDSignal: indicator.At(macd.Signal, 0),
		MACDHist:   indicator.At(macd.Hist, 0),
		StochK:     indicator.At(stoch.K, 0),
		StochD:     indicator.At(stoch.D, 0),
		ADX:        indicator.At(adx.ADX, 0),
		PlusDI:     indicator.At(adx.PlusDI, 0),
		MinusDI:    indicator.At(adx.MinusDI, 0),
		ATR:        indicator.At(atr, 0),
		VWAP:       indicator.At(vwap, 0),
		BBUpper:    indicator.At(bb.Upper, 0),
		BBLower:    indicator.At(bb.Lower, 0),
		VolRatio:   volRatio,
		OBVTrend:   obvDirection(obv, p),
		Structure:  structure(bars, p.StructureWindow),
	}

	out.Snapshot = snap
	out.Trend = emaTrendOf(snap.Close, emaFast, emaSlow, p.SlopeLookback)
	out.Strength = 0
	if indicator.Defined(snap.ADX) {
		out.Strength = helper.Clamp(snap.ADX, 0, 100)
	}
	if out.Strength < p.ChoppyADX {
		out.Trend = models.TrendRange
	}
	out.MomentumScore = momentumScore(snap, p)
	out.VolumeScore = volumeScore(snap)
	return out, nil
}

func emaTrendOf(close float64, fast, slow []float64, lookback int) models.Trend {
	f0, fL := indicator.At(fast, 0), indicator.At(fast, lookback)
	s0, sL := indicator.At(slow, 0), indicator.At(slow, lookback)
	for _, v := range []float64{f0, fL, s0, sL} {
		if !indicator.Defined(v) {
			return models.TrendRange
		}
	}
	switch {
	case close > f0 && close > s0 && f0 > s0 && f0 > fL && s0 > sL:
		return models.TrendUp
	case close < f0 && close < s0 && f0 < s0 && f0 < fL && s0 < sL:
		return models.TrendDown
	}
	return models.TrendRange
}

func momentumScore(s models.Snapshot, p Params) float64 {
	rsiPart := 0.0
	if indicator.Defined(s.RSI) {
		rsiPart = helper.Clamp((s.RSI-50)/25, -1, 1)
	}
	macdPart := 0.0
	if indicator.Defined(s.MACDHist) && indicator.Defined(s.ATR) && s.ATR > 0 {
		macdPart = helper.Clamp(s.MACDHist/(0.25*s.ATR), -1, 1)
	}
	stochPart := 0.0
	if indicator.Defined(s.StochK) {
		stochPart = helper.Clamp((s.StochK-50)/50, -1, 1)
		// exhausted extremes count for less
		if s.StochK > p.Overbought || s.StochK < p.Oversold {
			stochPart /= 2
		}
	}
	return helper.Clamp(100*(0.40*rsiPart+0.35*macdPart+0.25*stochPart), -100, 100)
}

func volumeScore(s models.Snapshot) float64 {
	if s.OBVTrend == 0 {
		return 0
	}
	ratio := s.VolRatio
	if !indicator.Defined(ratio) {
		ratio = 1
	}
	activity := 40 + 60*helper.Clamp((ratio-0.5)/1.5, 0, 1)
	return float64(s.OBVTrend) * activity
}

func obvDirection(obv []float64, p Params) int {
	last := indicator.At(obv, 0)
	if avg, err := indicator.SMA(obv, p.VolumePeriod); err == nil {
		if a := indicator.At(avg, 0); indicator.Defined(a) {
			switch {
			case last > a:
				return 1
			case last < a:
				return -1
			}
		}
	}
	slope, err := indicator.Slope(obv, p.OBVSlope)
	if err != nil {
		return 0
	}
	switch {
	case slope > 0:
		return 1
	case slope < 0:
		return -1
	}
	return 0
}

// structure compares the latest window of highs/lows with the one before it.
func structure(bars []models.Bar, w int) models.Trend {
	if len(bars) < 2*w {
		return models.TrendRange
	}
	hiNow, loNow := extremes(bars[len(bars)-w:])
	hiPrev, loPrev := extremes(bars[len(bars)-2*w : len(bars)-w])
	switch {
	case hiNow > hiPrev && loNow > loPrev:
		return models.TrendUp
	case hiNow < hiPrev && loNow < loPrev:
		return models.TrendDown
	}
	return models.TrendRange
}

func extremes(bars []models.Bar) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}
