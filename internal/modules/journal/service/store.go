package service

import (
	"context"
	"time"

	"trade_guard/internal/models"
)

// Store is an append-only trade journal.
type Store interface {
	Append(ctx context.Context, e models.JournalEntry) error
	// Since returns entries closed at or after from, oldest first.
	Since(ctx context.Context, from time.Time) ([]models.JournalEntry, error)
}

// Nop discards entries; used when journaling is switched off.
type Nop struct{}

func (Nop) Append(context.Context, models.JournalEntry) error { return nil }

func (Nop) Since(context.Context, time.Time) ([]models.JournalEntry, error) { return nil, nil }
