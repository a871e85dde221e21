package models

import "time"

type JournalEntry struct {
	ID           int64         `json:"id"`
	Symbol       string        `json:"symbol"`
	Side         Side          `json:"side"`
	Entry        float64       `json:"entry_price"`
	Exit         float64       `json:"exit_price"`
	Stop         float64       `json:"stop_loss"`
	Contracts    float64       `json:"contracts"`
	ContractSize float64       `json:"contract_size"`
	PnL          float64       `json:"pnl_usd"`
	PnLPct       float64       `json:"pnl_pct"`
	Fees         float64       `json:"fees"`
	TPHit        int           `json:"take_profit_hit,omitempty"`
	EntryScore   float64       `json:"entry_score,omitempty"`
	HoldTime     time.Duration `json:"hold_time"`
	Notes        string        `json:"notes,omitempty"`
	OpenedAt     time.Time     `json:"opened_at"`
	ClosedAt     time.Time     `json:"closed_at"`
}

type JournalStats struct {
	PeriodDays   int
	Trades       int
	Winners      int
	Losers       int
	WinRate      float64
	TotalPnL     float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	Best         *JournalEntry
	Worst        *JournalEntry
	AvgScore     float64
}
