package indicator

import (
	"math"

	"trade_guard/internal/models"
)

type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger uses the sample standard deviation.
func Bollinger(close []float64, n int, k float64) (Bands, error) {
	if n <= 1 || len(close) < n {
		return Bands{}, insufficient("Bollinger", len(close), n)
	}
	mid := rollingMean(close, n)
	b := Bands{Upper: undefined(len(close)), Middle: mid, Lower: undefined(len(close))}
	for i := n - 1; i < len(close); i++ {
		ss := 0.0
		for j := i - n + 1; j <= i; j++ {
			d := close[j] - mid[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(n-1))
		b.Upper[i] = mid[i] + k*sd
		b.Lower[i] = mid[i] - k*sd
	}
	return b, nil
}

// OBV accumulates volume signed by the close-to-close direction.
func OBV(bars []models.Bar) ([]float64, error) {
	if len(bars) < 2 {
		return nil, insufficient("OBV", len(bars), 2)
	}
	out := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		switch {
		case d > 0:
			out[i] = out[i-1] + bars[i].Volume
		case d < 0:
			out[i] = out[i-1] - bars[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}

// VWAP is cumulative over the whole sequence.
func VWAP(bars []models.Bar) ([]float64, error) {
	if len(bars) < 1 {
		return nil, insufficient("VWAP", 0, 1)
	}
	out := undefined(len(bars))
	var pv, vol float64
	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3
		pv += tp * b.Volume
		vol += b.Volume
		if vol > 0 {
			out[i] = pv / vol
		}
	}
	return out, nil
}

// VolumeRatio compares the last bar's volume with its n-bar average.
func VolumeRatio(bars []models.Bar, n int) (float64, error) {
	if n <= 0 || len(bars) < n {
		return 0, insufficient("VolumeRatio", len(bars), n)
	}
	avg := 0.0
	for _, b := range bars[len(bars)-n:] {
		avg += b.Volume
	}
	avg /= float64(n)
	if avg <= 0 {
		return 1, nil
	}
	return bars[len(bars)-1].Volume / avg, nil
}
