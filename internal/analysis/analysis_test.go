package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/pkg/cache"
)

func series(n int, price func(i int) float64) []models.Bar {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	prev := price(0)
	for i := 0; i < n; i++ {
		c := price(i)
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   prev,
			High:   math.Max(prev, c) + 0.5,
			Low:    math.Min(prev, c) - 0.5,
			Close:  c,
			Volume: 1000 + float64(i%5)*50,
		}
		prev = c
	}
	return bars
}

func rising(i int) float64  { return 100 + 1.5*float64(i) }
func falling(i int) float64 { return 400 - 1.5*float64(i) }
func still(int) float64     { return 100 }

func TestAnalyzeTrends(t *testing.T) {
	tests := []struct {
		name     string
		price    func(int) float64
		trend    models.Trend
		momentum func(float64) bool
		volume   func(float64) bool
	}{
		{"uptrend", rising, models.TrendUp,
			func(m float64) bool { return m > 0 }, func(v float64) bool { return v >= 40 }},
		{"downtrend", falling, models.TrendDown,
			func(m float64) bool { return m < 0 }, func(v float64) bool { return v <= -40 }},
		{"flat", still, models.TrendRange,
			func(m float64) bool { return m == 0 }, func(v float64) bool { return v == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(models.TF4h, series(150, tt.price), DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, models.TF4h, a.Timeframe)
			assert.Equal(t, tt.trend, a.Trend)
			assert.True(t, tt.momentum(a.MomentumScore), "momentum %v", a.MomentumScore)
			assert.True(t, tt.volume(a.VolumeScore), "volume %v", a.VolumeScore)
			assert.GreaterOrEqual(t, a.Strength, 0.0)
			assert.LessOrEqual(t, a.Strength, 100.0)
			assert.GreaterOrEqual(t, a.MomentumScore, -100.0)
			assert.LessOrEqual(t, a.MomentumScore, 100.0)
		})
	}
}

func TestAnalyzeFlatFailsGate(t *testing.T) {
	a, err := Analyze(models.TF1h, series(120, still), DefaultParams())
	require.NoError(t, err)
	assert.Less(t, a.Strength, DefaultParams().ChoppyADX)
	assert.Equal(t, models.TrendRange, a.Snapshot.Structure)
}

func TestAnalyzeChoppyGateForcesRange(t *testing.T) {
	p := DefaultParams()
	a, err := Analyze(models.TF1h, series(150, rising), p)
	require.NoError(t, err)
	require.Equal(t, models.TrendUp, a.Trend)
	assert.Equal(t, models.TrendUp, a.Snapshot.Structure)
	assert.Equal(t, 1, a.Snapshot.OBVTrend)

	p.ChoppyADX = 101
	a, err = Analyze(models.TF1h, series(150, rising), p)
	require.NoError(t, err)
	assert.Equal(t, models.TrendRange, a.Trend)
}

func TestAnalyzeInsufficient(t *testing.T) {
	_, err := Analyze(models.TF1d, series(59, rising), DefaultParams())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DataInsufficient))
}

type fakeSource struct {
	mu    sync.Mutex
	calls map[models.Timeframe]int
	bars  map[models.Timeframe][]models.Bar
	fail  map[models.Timeframe]error
}

func (f *fakeSource) Candles(_ context.Context, _ string, tf models.Timeframe, _ int) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[models.Timeframe]int{}
	}
	f.calls[tf]++
	if err := f.fail[tf]; err != nil {
		return nil, err
	}
	return f.bars[tf], nil
}

func TestFetcherAnalyzeAll(t *testing.T) {
	src := &fakeSource{bars: map[models.Timeframe][]models.Bar{
		models.TF1d:  series(30, rising),
		models.TF4h:  series(150, rising),
		models.TF1h:  series(200, rising),
		models.TF15m: series(200, rising),
	}}
	f := NewFetcher(src, cache.NewCache(time.Minute, time.Minute), DefaultParams(), nil, nil)
	tfs := []models.Timeframe{models.TF1d, models.TF4h, models.TF1h, models.TF15m}

	res, missing, err := f.AnalyzeAll(context.Background(), "ETH-USDT-SWAP", tfs)
	require.NoError(t, err)
	assert.Equal(t, []models.Timeframe{models.TF1d}, missing)
	assert.Len(t, res, 3)
	assert.Equal(t, models.TrendUp, res[models.TF4h].Trend)

	_, _, err = f.AnalyzeAll(context.Background(), "ETH-USDT-SWAP", tfs)
	require.NoError(t, err)
	for _, tf := range tfs {
		assert.Equal(t, 1, src.calls[tf], "%s served from cache", tf)
	}
}

func TestFetcherPropagatesGatewayErrors(t *testing.T) {
	boom := errs.Wrap(errs.GatewayTransient, "okx.Candles", errors.New("timeout"))
	src := &fakeSource{
		bars: map[models.Timeframe][]models.Bar{models.TF1h: series(200, rising)},
		fail: map[models.Timeframe]error{models.TF4h: boom},
	}
	f := NewFetcher(src, nil, DefaultParams(), nil, nil)

	_, _, err := f.AnalyzeAll(context.Background(), "BTC-USDT-SWAP", []models.Timeframe{models.TF4h, models.TF1h})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.GatewayTransient))
}
