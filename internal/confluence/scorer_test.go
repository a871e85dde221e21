package confluence

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/analysis"
	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

var allTFs = []models.Timeframe{models.TF1d, models.TF4h, models.TF1h, models.TF15m}

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

func analyzeAll(t *testing.T, price func(int) float64) map[models.Timeframe]models.TimeframeAnalysis {
	t.Helper()
	out := map[models.Timeframe]models.TimeframeAnalysis{}
	for _, tf := range allTFs {
		a, err := analysis.Analyze(tf, series(150, price), analysis.DefaultParams())
		require.NoError(t, err)
		out[tf] = a
	}
	return out
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		band  models.Band
	}{
		{100, models.BandStrong},
		{70, models.BandStrong},
		{69.99, models.BandGood},
		{60, models.BandGood},
		{59.5, models.BandModerate},
		{50, models.BandModerate},
		{49.9, models.BandNone},
		{0, models.BandNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.band, BandFor(tt.score), "score %v", tt.score)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[models.Timeframe]float64
		ok      bool
	}{
		{"defaults", DefaultWeights(), true},
		{"empty", map[models.Timeframe]float64{}, false},
		{"fast outvotes slow", map[models.Timeframe]float64{models.TF1d: 20, models.TF4h: 30}, false},
		{"equal to slower total", map[models.Timeframe]float64{models.TF4h: 30, models.TF1h: 20, models.TF15m: 50}, false},
		{"zero weight", map[models.Timeframe]float64{models.TF1d: 40, models.TF4h: 0}, false},
		{"unknown timeframe", map[models.Timeframe]float64{"7m": 10}, false},
		{"single timeframe", map[models.Timeframe]float64{models.TF1h: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errs.ConfigInvalid, errs.KindOf(err))
		})
	}
	assert.NoError(t, NewScorer().Validate())
}

func TestScoresStayInBounds(t *testing.T) {
	s := NewScorer()
	rng := rand.New(rand.NewSource(7))
	trends := []models.Trend{models.TrendUp, models.TrendDown, models.TrendRange}
	for i := 0; i < 500; i++ {
		per := map[models.Timeframe]models.TimeframeAnalysis{}
		for _, tf := range allTFs {
			if rng.Intn(5) == 0 {
				continue
			}
			per[tf] = models.TimeframeAnalysis{
				Timeframe:     tf,
				Trend:         trends[rng.Intn(3)],
				Strength:      rng.Float64() * 100,
				MomentumScore: rng.Float64()*200 - 100,
				VolumeScore:   rng.Float64()*200 - 100,
			}
		}
		res := s.Score("X", per, nil)
		for _, v := range []float64{res.LongScore, res.ShortScore} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
		assert.Len(t, res.Checklist, 12)
	}
}

func TestScoresStayInBoundsForNonFiniteReadings(t *testing.T) {
	s := NewScorer()
	bad := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, v := range bad {
		per := map[models.Timeframe]models.TimeframeAnalysis{}
		for _, tf := range allTFs {
			per[tf] = models.TimeframeAnalysis{
				Timeframe: tf, Trend: models.TrendUp,
				Strength: v, MomentumScore: v, VolumeScore: v,
				Snapshot: models.Snapshot{ADX: v, RSI: v, Close: v},
			}
		}
		res := s.Score("X", per, nil)
		for _, score := range []float64{res.LongScore, res.ShortScore} {
			assert.False(t, math.IsNaN(score), "reading %v", v)
			assert.GreaterOrEqual(t, score, 0.0, "reading %v", v)
			assert.LessOrEqual(t, score, 100.0, "reading %v", v)
		}
	}

	// one poisoned timeframe does not erase the others
	per := map[models.Timeframe]models.TimeframeAnalysis{
		models.TF1d: {Timeframe: models.TF1d, Trend: models.TrendUp, Strength: math.NaN(), MomentumScore: math.NaN()},
		models.TF4h: {Timeframe: models.TF4h, Trend: models.TrendUp, Strength: 40, MomentumScore: 60, VolumeScore: 30},
	}
	res := s.Score("X", per, nil)
	assert.Positive(t, res.LongScore)
	assert.LessOrEqual(t, res.LongScore, 100.0)
}

func TestFlatMarketScoresLowAndFailsGate(t *testing.T) {
	s := NewScorer()
	res := s.Score("FLAT", analyzeAll(t, func(int) float64 { return 100 }), nil)

	assert.Less(t, res.LongScore, 50.0)
	assert.Less(t, res.ShortScore, 50.0)
	assert.Equal(t, models.BandNone, res.LongBand)

	var gate *models.CheckItem
	for i := range res.Checklist {
		if res.Checklist[i].Name == "4h ADX above gate" {
			gate = &res.Checklist[i]
		}
	}
	require.NotNil(t, gate)
	assert.False(t, gate.Passed)

	_, ok := s.Decide(res, models.BandModerate)
	assert.False(t, ok)
}

func TestAlignedUptrendIsStrongLong(t *testing.T) {
	s := NewScorer()
	res := s.Score("UP", analyzeAll(t, func(i int) float64 { return 100 + 1.5*float64(i) }), nil)

	assert.GreaterOrEqual(t, res.LongScore, 70.0)
	assert.Equal(t, models.BandStrong, res.LongBand)
	assert.Less(t, res.ShortScore, 50.0)
	assert.Equal(t, models.Long, res.ChecklistSide)

	names := make([]string, 0, len(res.Checklist))
	for _, c := range res.Checklist {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"1d trend aligned", "4h trend aligned", "1h trend aligned", "15m trend aligned",
		"4h price beyond EMAs", "4h RSI in range", "4h MACD confirms", "4h ADX above gate",
		"1h price vs VWAP", "1h volume above average", "1h OBV confirms", "4h structure confirms",
	}, names)

	side, ok := s.Decide(res, models.BandStrong)
	assert.True(t, ok)
	assert.Equal(t, models.Long, side)
}

func TestPartialAlignmentDecaysMonotonically(t *testing.T) {
	s := NewScorer()
	order := []models.Timeframe{models.TF15m, models.TF1h, models.TF4h, models.TF1d}

	per := map[models.Timeframe]models.TimeframeAnalysis{}
	for _, tf := range allTFs {
		per[tf] = models.TimeframeAnalysis{Timeframe: tf, Trend: models.TrendRange}
	}
	prev := s.Score("X", per, nil).LongScore
	assert.Equal(t, 0.0, prev)

	for _, tf := range order {
		a := per[tf]
		a.Trend = models.TrendUp
		per[tf] = a
		cur := s.Score("X", per, nil).LongScore
		assert.Greater(t, cur, prev, "adding %s", tf)
		prev = cur
	}
	assert.InDelta(t, 40.0, prev, 1e-9)

	// a missing slow timeframe still counts against alignment
	delete(per, models.TF1d)
	partial := s.Score("X", per, []models.Timeframe{models.TF1d})
	assert.Less(t, partial.LongScore, prev)
	assert.InDelta(t, 40*math.Pow(0.6, 1.5), partial.LongScore, 1e-9)
	assert.Equal(t, []models.Timeframe{models.TF1d}, partial.Missing)
}

func TestDecideRespectsBandAndGates(t *testing.T) {
	s := NewScorer()
	res := models.ConfluenceResult{
		LongScore:     65,
		LongBand:      models.BandGood,
		ChecklistSide: models.Long,
		Checklist: []models.CheckItem{
			{Name: "4h trend aligned", Passed: true},
			{Name: "4h ADX above gate", Passed: true},
		},
	}
	side, ok := s.Decide(res, models.BandGood)
	assert.True(t, ok)
	assert.Equal(t, models.Long, side)

	_, ok = s.Decide(res, models.BandStrong)
	assert.False(t, ok)

	res.Checklist[0].Passed = false
	_, ok = s.Decide(res, models.BandModerate)
	assert.False(t, ok, "failed structural gate must veto a good score")
}
