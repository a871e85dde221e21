package helper

import (
	"math"
	"strings"

	"trade_guard/internal/models"
)

// NormTF maps exchange and user spellings onto the canonical timeframe names.
func NormTF(raw string) models.Timeframe {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return models.TF1h
	case "240m", "4h":
		return models.TF4h
	case "1d", "1day", "d", "24h":
		return models.TF1d
	case "15m", "15min":
		return models.TF15m
	default:
		return models.Timeframe(s)
	}
}

// TrailKey identifies a tracked position.
func TrailKey(symbol string, side models.Side) string { return symbol + ":" + string(side) }

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundStop rounds a stop price toward the position: down for longs, up for
// shorts, so rounding never tightens the stop past the computed level.
func RoundStop(px, tick float64, side models.Side) float64 {
	if side == models.Short {
		return RoundUpToTick(px, tick)
	}
	return RoundDownToTick(px, tick)
}

// FloorToLot floors a size to a multiple of lot. A zero lot means whole contracts.
func FloorToLot(sz, lot float64) float64 {
	if lot <= 0 {
		lot = 1
	}
	return math.Floor(sz/lot+1e-9) * lot
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
