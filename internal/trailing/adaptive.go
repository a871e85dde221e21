package trailing

import (
	"math"

	"trade_guard/internal/helper"
	"trade_guard/internal/models"
)

const (
	adaptiveBase = 2.0
	adaptiveMin  = 0.8
	adaptiveMax  = 3.5
)

// AdaptiveMultiple widens the trail in strong trends and tightens it when
// momentum, volume or trend start to turn against the position.
func AdaptiveMultiple(side models.Side, a models.TimeframeAnalysis) float64 {
	s := a.Snapshot
	m := adaptiveBase

	switch {
	case s.ADX > 30:
		m += 0.5
	case s.ADX < 20:
		m -= 0.5
	}

	if side == models.Short {
		switch {
		case s.RSI < 30:
			m -= 0.5
		case s.RSI < 40:
			m -= 0.3
		}
		switch {
		case s.MACDHist > 0:
			m -= 0.4
		case math.Abs(s.MACDHist) < 0.05:
			m -= 0.2
		}
		if s.StochK < 20 {
			m -= 0.3
		}
		if s.VWAP > 0 && s.Close > s.VWAP {
			m -= 0.4
		}
		if s.OBVTrend > 0 {
			m -= 0.3
		}
		if a.Trend == models.TrendUp {
			m -= 0.6
		}
	} else {
		switch {
		case s.RSI > 70:
			m -= 0.5
		case s.RSI > 60:
			m -= 0.3
		}
		switch {
		case s.MACDHist < 0:
			m -= 0.4
		case math.Abs(s.MACDHist) < 0.05:
			m -= 0.2
		}
		if s.StochK > 80 {
			m -= 0.3
		}
		if s.VWAP > 0 && s.Close < s.VWAP {
			m -= 0.4
		}
		if s.OBVTrend < 0 {
			m -= 0.3
		}
		if a.Trend == models.TrendDown {
			m -= 0.6
		}
	}
	return helper.Clamp(m, adaptiveMin, adaptiveMax)
}
