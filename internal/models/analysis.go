package models

import "time"

type Trend string

const (
	TrendUp    Trend = "UP"
	TrendDown  Trend = "DOWN"
	TrendRange Trend = "RANGE"
)

// Matches reports whether the trend points in the side's direction.
func (t Trend) Matches(s Side) bool {
	return (t == TrendUp && s == Long) || (t == TrendDown && s == Short)
}

// Snapshot is the latest reading of every indicator used by one analysis.
type Snapshot struct {
	Close      float64
	EMAFast    float64
	EMASlow    float64
	EMATrend   float64 // NaN when history is shorter than the trend period
	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	StochK     float64
	StochD     float64
	ADX        float64
	PlusDI     float64
	MinusDI    float64
	ATR        float64
	VWAP       float64
	BBUpper    float64
	BBLower    float64
	VolRatio   float64
	OBVTrend   int   // +1 rising, -1 falling, 0 flat
	Structure  Trend // swing structure of recent highs/lows
}

type TimeframeAnalysis struct {
	Timeframe     Timeframe
	Trend         Trend
	Strength      float64 // ADX, clipped to [0,100]
	MomentumScore float64 // [-100,100], positive is bullish
	VolumeScore   float64 // [-100,100], positive is bullish
	Snapshot      Snapshot
}

type Band string

const (
	BandStrong   Band = "STRONG"
	BandGood     Band = "GOOD"
	BandModerate Band = "MODERATE"
	BandNone     Band = "NO_SIGNAL"
)

// Rank orders bands from NO_SIGNAL (0) to STRONG (3).
func (b Band) Rank() int {
	switch b {
	case BandStrong:
		return 3
	case BandGood:
		return 2
	case BandModerate:
		return 1
	}
	return 0
}

type CheckItem struct {
	Name   string
	Passed bool
}

type ConfluenceResult struct {
	Symbol        string
	LongScore     float64
	ShortScore    float64
	LongBand      Band
	ShortBand     Band
	PerTimeframe  map[Timeframe]TimeframeAnalysis
	Missing       []Timeframe
	ChecklistSide Side
	Checklist     []CheckItem
	EvaluatedAt   time.Time
}

// Score returns the score of one side.
func (r ConfluenceResult) Score(s Side) float64 {
	if s == Short {
		return r.ShortScore
	}
	return r.LongScore
}

func (r ConfluenceResult) Band(s Side) Band {
	if s == Short {
		return r.ShortBand
	}
	return r.LongBand
}

func (r ConfluenceResult) Passed() int {
	n := 0
	for _, c := range r.Checklist {
		if c.Passed {
			n++
		}
	}
	return n
}
