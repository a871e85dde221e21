package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/confluence"
	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

type fakeAnalyzer struct {
	per map[string]models.TimeframeAnalysis
}

func (f fakeAnalyzer) AnalyzeAll(_ context.Context, symbol string, tfs []models.Timeframe) (map[models.Timeframe]models.TimeframeAnalysis, []models.Timeframe, error) {
	a, ok := f.per[symbol]
	if !ok {
		return nil, nil, errs.E(errs.GatewayTransient, "candles", "instrument %s unavailable", symbol)
	}
	out := make(map[models.Timeframe]models.TimeframeAnalysis, len(tfs))
	for _, tf := range tfs {
		a.Timeframe = tf
		out[tf] = a
	}
	return out, nil, nil
}

type fakeUniverse []string

func (u fakeUniverse) TopVolatile(_ context.Context, n int) ([]string, error) {
	if n > len(u) {
		n = len(u)
	}
	return u[:n], nil
}

type captureNotifier struct {
	mu    sync.Mutex
	kinds []models.EventKind
	syms  []string
}

func (c *captureNotifier) Notify(_ context.Context, kind models.EventKind, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	if r, ok := payload.(models.ConfluenceResult); ok {
		c.syms = append(c.syms, r.Symbol)
	}
}

var (
	strongUp = models.TimeframeAnalysis{
		Trend: models.TrendUp, Strength: 40, MomentumScore: 80, VolumeScore: 60,
		Snapshot: models.Snapshot{Close: 110, EMAFast: 105, EMASlow: 100, RSI: 60, MACDHist: 1, ADX: 40, VWAP: 104, VolRatio: 1.3, OBVTrend: 1, Structure: models.TrendUp},
	}
	strongDown = models.TimeframeAnalysis{
		Trend: models.TrendDown, Strength: 30, MomentumScore: -70, VolumeScore: -40,
		Snapshot: models.Snapshot{Close: 90, EMAFast: 95, EMASlow: 100, RSI: 40, MACDHist: -1, ADX: 30, VWAP: 96, VolRatio: 1.1, OBVTrend: -1, Structure: models.TrendDown},
	}
	ranging = models.TimeframeAnalysis{
		Trend:    models.TrendRange,
		Snapshot: models.Snapshot{Close: 100, EMAFast: 100, EMASlow: 100, RSI: 50, ADX: 12, VWAP: 100},
	}
)

func newScanner(n *captureNotifier, opts Options) *Scanner {
	a := fakeAnalyzer{per: map[string]models.TimeframeAnalysis{
		"BTC-USDT-SWAP": strongUp,
		"ETH-USDT-SWAP": strongDown,
		"XRP-USDT-SWAP": ranging,
	}}
	return New(fakeUniverse{"SOL-USDT-SWAP", "BTC-USDT-SWAP", "ETH-USDT-SWAP"}, a, confluence.NewScorer(), n, opts, nil)
}

func TestScanRanksAndNotifies(t *testing.T) {
	n := &captureNotifier{}
	s := newScanner(n, Options{MinBand: models.BandGood, Concurrency: 2})

	out, err := s.Scan(context.Background(), []string{"XRP-USDT-SWAP", "ETH-USDT-SWAP", "DOGE-USDT-SWAP", "BTC-USDT-SWAP"})
	require.NoError(t, err)
	require.Len(t, out, 3, "the failing symbol is skipped")

	assert.Equal(t, "BTC-USDT-SWAP", out[0].Result.Symbol)
	assert.True(t, out[0].Tradable)
	assert.Equal(t, models.Long, out[0].Side)

	assert.Equal(t, "ETH-USDT-SWAP", out[1].Result.Symbol)
	assert.True(t, out[1].Tradable)
	assert.Equal(t, models.Short, out[1].Side)

	assert.Equal(t, "XRP-USDT-SWAP", out[2].Result.Symbol)
	assert.False(t, out[2].Tradable)
	assert.Empty(t, out[2].Side)

	assert.Equal(t, []models.EventKind{models.EventOpportunity, models.EventOpportunity}, n.kinds)
	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, n.syms)
}

func TestScanMinBandFilters(t *testing.T) {
	// 40 trend + 5 momentum + 10 strength: MODERATE with both gates passing.
	mild := models.TimeframeAnalysis{
		Trend: models.TrendUp, Strength: 25, MomentumScore: 20,
		Snapshot: models.Snapshot{Close: 101, EMAFast: 100, EMASlow: 99, RSI: 55, MACDHist: 0.1, ADX: 30, VWAP: 100},
	}
	a := fakeAnalyzer{per: map[string]models.TimeframeAnalysis{"ADA-USDT-SWAP": mild}}

	for _, tt := range []struct {
		min      models.Band
		tradable bool
	}{
		{models.BandModerate, true},
		{models.BandGood, false},
	} {
		n := &captureNotifier{}
		s := New(fakeUniverse{}, a, confluence.NewScorer(), n, Options{MinBand: tt.min}, nil)
		out, err := s.Scan(context.Background(), []string{"ADA-USDT-SWAP"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, models.BandModerate, out[0].Result.LongBand)
		assert.Equal(t, tt.tradable, out[0].Tradable, "min band %s", tt.min)
		assert.Equal(t, tt.tradable, len(n.kinds) == 1)
	}
}

func TestScanCancelled(t *testing.T) {
	s := newScanner(&captureNotifier{}, Options{MinBand: models.BandGood})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, []string{"DOGE-USDT-SWAP"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSymbolsResolution(t *testing.T) {
	ctx := context.Background()

	s := newScanner(&captureNotifier{}, Options{TopN: 2})
	got, err := s.Symbols(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL-USDT-SWAP", "BTC-USDT-SWAP"}, got)

	s = newScanner(&captureNotifier{}, Options{Watchlist: []string{"ETH-USDT-SWAP", " ", "ETH-USDT-SWAP"}, TopN: 2})
	got, err = s.Symbols(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH-USDT-SWAP"}, got)

	got, err = s.Symbols(ctx, []string{"XRP-USDT-SWAP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"XRP-USDT-SWAP"}, got)
}
