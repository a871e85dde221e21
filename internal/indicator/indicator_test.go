package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

func makeBars(n int, price func(i int) float64) []models.Bar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	prev := price(0)
	for i := 0; i < n; i++ {
		c := price(i)
		hi := math.Max(prev, c) + 0.5
		lo := math.Min(prev, c) - 0.5
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * 15 * time.Minute),
			Open:   prev,
			High:   hi,
			Low:    lo,
			Close:  c,
			Volume: 100 + float64(i%7)*10,
		}
		prev = c
	}
	return bars
}

func uptrend(i int) float64 { return 100 + float64(i)*0.8 + math.Sin(float64(i)/3)*0.6 }
func flat(int) float64      { return 100 }

func sameSeries(t *testing.T, whole, prefix []float64) {
	t.Helper()
	require.LessOrEqual(t, len(prefix), len(whole))
	for i := range prefix {
		if math.IsNaN(prefix[i]) {
			assert.True(t, math.IsNaN(whole[i]), "index %d: prefix undefined, whole %v", i, whole[i])
			continue
		}
		assert.InDelta(t, whole[i], prefix[i], 1e-9, "index %d", i)
	}
}

func TestSeriesKeepInputLength(t *testing.T) {
	bars := makeBars(120, uptrend)
	closes := Closes(bars)

	ema, err := EMA(closes, 20)
	require.NoError(t, err)
	rsi, err := RSI(closes, 14)
	require.NoError(t, err)
	macd, err := MACD(closes, 12, 26, 9)
	require.NoError(t, err)
	adx, err := ADX(bars, 14)
	require.NoError(t, err)
	atr, err := ATR(bars, 14)
	require.NoError(t, err)
	bb, err := Bollinger(closes, 20, 2)
	require.NoError(t, err)
	obv, err := OBV(bars)
	require.NoError(t, err)
	vwap, err := VWAP(bars)
	require.NoError(t, err)
	st, err := StochRSI(closes, 14, 3, 3)
	require.NoError(t, err)

	for name, s := range map[string][]float64{
		"ema": ema, "rsi": rsi, "macd": macd.Line, "signal": macd.Signal, "hist": macd.Hist,
		"adx": adx.ADX, "+di": adx.PlusDI, "atr": atr, "bb": bb.Upper, "obv": obv,
		"vwap": vwap, "k": st.K, "d": st.D,
	} {
		assert.Len(t, s, len(bars), name)
		_, ok := Last(s)
		assert.True(t, ok, "%s has no defined tail", name)
	}

	// leading positions are undefined
	assert.True(t, math.IsNaN(ema[18]))
	assert.False(t, math.IsNaN(ema[19]))
	assert.True(t, math.IsNaN(rsi[13]))
	assert.False(t, math.IsNaN(rsi[14]))
	assert.True(t, math.IsNaN(macd.Hist[32]))
	assert.False(t, math.IsNaN(macd.Hist[33]))
	assert.True(t, math.IsNaN(adx.ADX[26]))
	assert.False(t, math.IsNaN(adx.ADX[27]))
}

func TestInsufficientData(t *testing.T) {
	bars := makeBars(10, uptrend)
	closes := Closes(bars)

	tests := []struct {
		name string
		run  func() error
	}{
		{"EMA", func() error { _, err := EMA(closes, 20); return err }},
		{"SMA", func() error { _, err := SMA(closes, 20); return err }},
		{"RSI", func() error { _, err := RSI(closes, 14); return err }},
		{"StochRSI", func() error { _, err := StochRSI(closes, 14, 3, 3); return err }},
		{"MACD", func() error { _, err := MACD(closes, 12, 26, 9); return err }},
		{"ADX", func() error { _, err := ADX(bars, 14); return err }},
		{"ATR", func() error { _, err := ATR(bars, 14); return err }},
		{"Bollinger", func() error { _, err := Bollinger(closes, 20, 2); return err }},
		{"OBV", func() error { _, err := OBV(bars[:1]); return err }},
		{"VWAP", func() error { _, err := VWAP(nil); return err }},
		{"VolumeRatio", func() error { _, err := VolumeRatio(bars, 20); return err }},
		{"Slope", func() error { _, err := Slope(closes, 10); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.DataInsufficient), "got %v", err)
		})
	}
}

func TestRestartable(t *testing.T) {
	bars := makeBars(150, uptrend)
	closes := Closes(bars)

	for _, cut := range []int{60, 100, 149} {
		pre := bars[:cut]
		preCloses := closes[:cut]

		whole, _ := EMA(closes, 20)
		part, _ := EMA(preCloses, 20)
		sameSeries(t, whole, part)

		wholeRSI, _ := RSI(closes, 14)
		partRSI, _ := RSI(preCloses, 14)
		sameSeries(t, wholeRSI, partRSI)

		wholeMACD, _ := MACD(closes, 12, 26, 9)
		partMACD, _ := MACD(preCloses, 12, 26, 9)
		sameSeries(t, wholeMACD.Hist, partMACD.Hist)

		wholeADX, _ := ADX(bars, 14)
		partADX, _ := ADX(pre, 14)
		sameSeries(t, wholeADX.ADX, partADX.ADX)

		wholeATR, _ := ATR(bars, 14)
		partATR, _ := ATR(pre, 14)
		sameSeries(t, wholeATR, partATR)

		wholeSt, _ := StochRSI(closes, 14, 3, 3)
		partSt, _ := StochRSI(preCloses, 14, 3, 3)
		sameSeries(t, wholeSt.K, partSt.K)

		wholeOBV, _ := OBV(bars)
		partOBV, _ := OBV(pre)
		sameSeries(t, wholeOBV, partOBV)
	}
}

func TestEMAAndSMA(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	sma, err := SMA(x, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, sma[2], 1e-12)
	assert.InDelta(t, 4.0, sma[4], 1e-12)

	ema, err := EMA([]float64{10, 10, 10, 10}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, ema[3], 1e-12)

	// alpha = 0.5 for n=3, seeded at the first value
	ema, err = EMA([]float64{2, 4, 8}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, ema[2], 1e-12)
}

func TestRSIExtremes(t *testing.T) {
	up := Closes(makeBars(40, func(i int) float64 { return 100 + float64(i) }))
	down := Closes(makeBars(40, func(i int) float64 { return 200 - float64(i) }))
	still := Closes(makeBars(40, flat))

	r, err := RSI(up, 14)
	require.NoError(t, err)
	assert.Greater(t, At(r, 0), 99.0)

	r, err = RSI(down, 14)
	require.NoError(t, err)
	assert.Less(t, At(r, 0), 1.0)

	r, err = RSI(still, 14)
	require.NoError(t, err)
	assert.Equal(t, 50.0, At(r, 0))
}

func TestADX(t *testing.T) {
	res, err := ADX(makeBars(80, flat), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0, At(res.ADX, 0), 1e-6)

	res, err = ADX(makeBars(80, func(i int) float64 { return 100 + float64(i)*2 }), 14)
	require.NoError(t, err)
	assert.Greater(t, At(res.ADX, 0), 25.0)
	assert.Greater(t, At(res.PlusDI, 0), At(res.MinusDI, 0))
}

func TestADXEqualMovesCancel(t *testing.T) {
	// every bar expands by the same amount on both sides
	bars := make([]models.Bar, 40)
	for i := range bars {
		w := float64(i)
		bars[i] = models.Bar{Open: 100, High: 100 + w, Low: 100 - w, Close: 100, Volume: 1}
	}
	res, err := ADX(bars, 14)
	require.NoError(t, err)
	assert.InDelta(t, 0, At(res.PlusDI, 0), 1e-9)
	assert.InDelta(t, 0, At(res.MinusDI, 0), 1e-9)
	assert.InDelta(t, 0, At(res.ADX, 0), 1e-6)
}

func TestATRConstantRange(t *testing.T) {
	bars := make([]models.Bar, 20)
	for i := range bars {
		bars[i] = models.Bar{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	}
	atr, err := ATR(bars, 14)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, At(atr, 0), 1e-12)
}

func TestBollingerFlat(t *testing.T) {
	bb, err := Bollinger(Closes(makeBars(30, flat)), 20, 2)
	require.NoError(t, err)
	assert.InDelta(t, 100, At(bb.Upper, 0), 1e-12)
	assert.InDelta(t, 100, At(bb.Lower, 0), 1e-12)
}

func TestOBVAndVWAP(t *testing.T) {
	bars := []models.Bar{
		{High: 11, Low: 9, Close: 10, Volume: 100},
		{High: 12, Low: 10, Close: 11, Volume: 50},
		{High: 11, Low: 9, Close: 10, Volume: 30},
		{High: 11, Low: 9, Close: 10, Volume: 20},
	}
	obv, err := OBV(bars)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 50, 20, 20}, obv)

	vwap, err := VWAP(bars)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, vwap[0], 1e-12)
	assert.InDelta(t, (10*100+11*50)/150.0, vwap[1], 1e-12)

	zero, err := VWAP([]models.Bar{{High: 1, Low: 1, Close: 1}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(zero[0]))
}

func TestVolumeRatioAndSlope(t *testing.T) {
	bars := makeBars(25, flat)
	for i := range bars {
		bars[i].Volume = 100
	}
	bars[len(bars)-1].Volume = 300
	ratio, err := VolumeRatio(bars, 20)
	require.NoError(t, err)
	assert.InDelta(t, 300/110.0, ratio, 1e-9)

	s, err := Slope([]float64{1, 2, 3, 4, 5, 6}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-12)
}
