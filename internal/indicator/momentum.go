package indicator

import "math"

const epsilon = 1e-9

// RSI uses rolling-mean gains and losses. A window with no movement reads 50.
func RSI(close []float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, insufficient("RSI", len(close), 1)
	}
	if len(close) < n+1 {
		return nil, insufficient("RSI", len(close), n+1)
	}
	gains := make([]float64, len(close))
	losses := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	out := undefined(len(close))
	for i := n; i < len(close); i++ {
		g, l := 0.0, 0.0
		for j := i - n + 1; j <= i; j++ {
			g += gains[j]
			l += losses[j]
		}
		g /= float64(n)
		l /= float64(n)
		if g == 0 && l == 0 {
			out[i] = 50
			continue
		}
		rs := g / (l + epsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out, nil
}

type Stoch struct {
	K []float64
	D []float64
}

// StochRSI is the stochastic oscillator of RSI scaled to 0..100, smoothed into K and D.
func StochRSI(close []float64, n, smoothK, smoothD int) (Stoch, error) {
	need := 2*n + smoothK + smoothD - 2
	if n <= 0 || smoothK <= 0 || smoothD <= 0 || len(close) < need {
		return Stoch{}, insufficient("StochRSI", len(close), need)
	}
	rsi, err := RSI(close, n)
	if err != nil {
		return Stoch{}, err
	}

	raw := undefined(len(close))
	for i := 2*n - 1; i < len(close); i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - n + 1; j <= i; j++ {
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if hi-lo == 0 {
			raw[i] = 50
			continue
		}
		raw[i] = (rsi[i] - lo) / (hi - lo + epsilon) * 100
	}

	k := rollingMean(raw, smoothK)
	d := rollingMean(k, smoothD)
	return Stoch{K: k, D: d}, nil
}

type MACDResult struct {
	Line   []float64
	Signal []float64
	Hist   []float64
}

// MACD runs both EMAs from the first bar; the line is defined from slow-1 and
// the signal and histogram from slow+signal-2.
func MACD(close []float64, fast, slow, signal int) (MACDResult, error) {
	need := slow + signal - 1
	if fast <= 0 || slow <= fast || signal <= 0 || len(close) < need {
		return MACDResult{}, insufficient("MACD", len(close), need)
	}
	f := emaRaw(close, fast)
	s := emaRaw(close, slow)

	line := make([]float64, len(close))
	for i := range close {
		line[i] = f[i] - s[i]
	}
	sig := emaRaw(line, signal)

	res := MACDResult{
		Line:   undefined(len(close)),
		Signal: undefined(len(close)),
		Hist:   undefined(len(close)),
	}
	for i := range close {
		if i >= slow-1 {
			res.Line[i] = line[i]
		}
		if i >= need-1 {
			res.Signal[i] = sig[i]
			res.Hist[i] = line[i] - sig[i]
		}
	}
	return res, nil
}
