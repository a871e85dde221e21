package service

import (
	"context"
	"math"
	"time"

	"trade_guard/internal/models"
)

// Stats summarizes closed trades. Breakeven trades count toward Trades
// only. ProfitFactor is +Inf when there are wins and no losses.
func Stats(entries []models.JournalEntry, days int) models.JournalStats {
	s := models.JournalStats{PeriodDays: days, Trades: len(entries)}
	if len(entries) == 0 {
		return s
	}

	var grossWin, grossLoss, scoreSum float64
	var scored int
	for i := range entries {
		e := entries[i]
		s.TotalPnL += e.PnL
		switch {
		case e.PnL > 0:
			s.Winners++
			grossWin += e.PnL
		case e.PnL < 0:
			s.Losers++
			grossLoss += e.PnL
		}
		if e.EntryScore > 0 {
			scoreSum += e.EntryScore
			scored++
		}
		if s.Best == nil || e.PnL > s.Best.PnL {
			s.Best = &entries[i]
		}
		if s.Worst == nil || e.PnL < s.Worst.PnL {
			s.Worst = &entries[i]
		}
	}

	s.WinRate = float64(s.Winners) / float64(s.Trades) * 100
	if s.Winners > 0 {
		s.AvgWin = grossWin / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AvgLoss = grossLoss / float64(s.Losers)
	}
	switch {
	case grossLoss < 0:
		s.ProfitFactor = grossWin / -grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}
	if scored > 0 {
		s.AvgScore = scoreSum / float64(scored)
	}
	return s
}

// Journal is the store plus reporting.
type Journal struct {
	Store
	now func() time.Time
}

func NewJournal(store Store) *Journal {
	return &Journal{Store: store, now: time.Now}
}

// Stats reports on trades closed in the last days days.
func (j *Journal) Stats(ctx context.Context, days int) (models.JournalStats, error) {
	if days <= 0 {
		days = 30
	}
	entries, err := j.Since(ctx, j.now().AddDate(0, 0, -days))
	if err != nil {
		return models.JournalStats{}, err
	}
	return Stats(entries, days), nil
}
