package models

import (
	"strings"
	"time"
)

// Bar is one OHLCV candle. Sequences are ordered oldest first.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

func (s Side) Valid() bool { return s == Long || s == Short }

func ParseSide(raw string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BUY":
		return Long, true
	case "SHORT", "SELL":
		return Short, true
	}
	return "", false
}

type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case TF4h:
		return 4 * time.Hour
	case "12h":
		return 12 * time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

type Ticker struct {
	Symbol string
	Last   float64
	Time   time.Time
}

type Balance struct {
	Free  float64
	Total float64
}
