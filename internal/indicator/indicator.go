// Package indicator computes technical indicators over ordered bar sequences.
//
// Every function returns a series of the same length as its input. Positions
// without enough history hold NaN. Inputs shorter than the minimum window fail
// with an errs.DataInsufficient error. Functions keep no state between calls.
package indicator

import (
	"math"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

// Defined reports whether v is a usable value.
func Defined(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Last returns the final defined value of x.
func Last(x []float64) (float64, bool) {
	for i := len(x) - 1; i >= 0; i-- {
		if Defined(x[i]) {
			return x[i], true
		}
	}
	return math.NaN(), false
}

// At returns x[len(x)-1-back] or NaN when out of range.
func At(x []float64, back int) float64 {
	i := len(x) - 1 - back
	if i < 0 || i >= len(x) {
		return math.NaN()
	}
	return x[i]
}

func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func Volumes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

func insufficient(op string, have, need int) error {
	return errs.E(errs.DataInsufficient, "indicator."+op, "have %d values, need %d", have, need)
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the rolling mean over n values.
func SMA(x []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, errs.E(errs.ConfigInvalid, "indicator.SMA", "period %d", n)
	}
	if len(x) < n {
		return nil, insufficient("SMA", len(x), n)
	}
	return rollingMean(x, n), nil
}

func rollingMean(x []float64, n int) []float64 {
	out := undefined(len(x))
	for i := n - 1; i < len(x); i++ {
		sum := 0.0
		ok := true
		for j := i - n + 1; j <= i; j++ {
			if !Defined(x[j]) {
				ok = false
				break
			}
			sum += x[j]
		}
		if ok {
			out[i] = sum / float64(n)
		}
	}
	return out
}

type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) ready() bool { return e.warmup >= e.period }

// emaRaw runs the recursion from the first defined value without masking warmup.
func emaRaw(x []float64, n int) []float64 {
	out := undefined(len(x))
	st := newEMA(n)
	for i, v := range x {
		if !Defined(v) {
			continue
		}
		st.update(v)
		out[i] = st.value
	}
	return out
}

// EMA is seeded with the first value and defined once n values have been seen.
func EMA(x []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, errs.E(errs.ConfigInvalid, "indicator.EMA", "period %d", n)
	}
	if len(x) < n {
		return nil, insufficient("EMA", len(x), n)
	}
	out := undefined(len(x))
	st := newEMA(n)
	for i, v := range x {
		if !Defined(v) {
			continue
		}
		st.update(v)
		if st.ready() {
			out[i] = st.value
		}
	}
	return out, nil
}

// Slope is the average change per bar over the last n bars.
func Slope(x []float64, n int) (float64, error) {
	if n <= 0 || len(x) < n+1 {
		return 0, insufficient("Slope", len(x), n+1)
	}
	a, b := At(x, n), At(x, 0)
	if !Defined(a) || !Defined(b) {
		return 0, insufficient("Slope", len(x), n+1)
	}
	return (b - a) / float64(n), nil
}
