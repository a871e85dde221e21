package indicator

import (
	"math"

	"trade_guard/internal/models"
)

func trueRange(bars []models.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		tr[i] = b.High - b.Low
		if i == 0 {
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(tr[i], math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return tr
}

// ATR is the rolling mean of true range.
func ATR(bars []models.Bar, n int) ([]float64, error) {
	if n <= 0 || len(bars) < n {
		return nil, insufficient("ATR", len(bars), n)
	}
	return rollingMean(trueRange(bars), n), nil
}

type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX follows the rolling-sum form: directional movement and true range are
// summed over n bars and DX is averaged over another n.
func ADX(bars []models.Bar, n int) (ADXResult, error) {
	if n <= 0 || len(bars) < 2*n {
		return ADXResult{}, insufficient("ADX", len(bars), 2*n)
	}
	tr := trueRange(bars)
	plus := make([]float64, len(bars))
	minus := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		// equal moves cancel: neither direction gets the bar
		switch {
		case up > down && up > 0:
			plus[i] = up
		case down > up && down > 0:
			minus[i] = down
		}
	}

	res := ADXResult{
		ADX:     undefined(len(bars)),
		PlusDI:  undefined(len(bars)),
		MinusDI: undefined(len(bars)),
	}
	dx := undefined(len(bars))
	for i := n; i < len(bars); i++ {
		var sTR, sP, sM float64
		for j := i - n + 1; j <= i; j++ {
			sTR += tr[j]
			sP += plus[j]
			sM += minus[j]
		}
		pdi := sP / (sTR + epsilon) * 100
		mdi := sM / (sTR + epsilon) * 100
		res.PlusDI[i], res.MinusDI[i] = pdi, mdi
		dx[i] = math.Abs(pdi-mdi) / (pdi + mdi + epsilon) * 100
	}
	res.ADX = rollingMean(dx, n)
	return res, nil
}
