package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_guard/internal/models"
	"trade_guard/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id            BIGSERIAL PRIMARY KEY,
	symbol        TEXT             NOT NULL,
	side          TEXT             NOT NULL,
	entry_price   DOUBLE PRECISION NOT NULL,
	exit_price    DOUBLE PRECISION NOT NULL,
	stop_loss     DOUBLE PRECISION NOT NULL,
	contracts     DOUBLE PRECISION NOT NULL,
	contract_size DOUBLE PRECISION NOT NULL,
	pnl_usd       DOUBLE PRECISION NOT NULL,
	pnl_pct       DOUBLE PRECISION NOT NULL,
	fees          DOUBLE PRECISION NOT NULL,
	tp_hit        INTEGER          NOT NULL DEFAULT 0,
	entry_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	hold_seconds  BIGINT           NOT NULL,
	notes         TEXT             NOT NULL DEFAULT '',
	opened_at     TIMESTAMPTZ      NOT NULL,
	closed_at     TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_closed_at_idx ON trades (closed_at);`

const insertTrade = `
INSERT INTO trades (symbol, side, entry_price, exit_price, stop_loss, contracts, contract_size,
	pnl_usd, pnl_pct, fees, tp_hit, entry_score, hold_seconds, notes, opened_at, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id`

const selectSince = `
SELECT id, symbol, side, entry_price, exit_price, stop_loss, contracts, contract_size,
	pnl_usd, pnl_pct, fees, tp_hit, entry_score, hold_seconds, notes, opened_at, closed_at
FROM trades
WHERE closed_at >= $1
ORDER BY closed_at`

type Postgres struct {
	db db.TxManager
}

func NewPostgres(tm db.TxManager) *Postgres {
	return &Postgres{db: tm}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, schema)
		return err
	})
}

func (p *Postgres) Append(ctx context.Context, e models.JournalEntry) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Journal.Append")
		}
	}()
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		var id int64
		err := tx.QueryRow(ctxTx, insertTrade,
			e.Symbol, string(e.Side), e.Entry, e.Exit, e.Stop, e.Contracts, e.ContractSize,
			e.PnL, e.PnLPct, e.Fees, e.TPHit, e.EntryScore, int64(e.HoldTime/time.Second), e.Notes,
			e.OpenedAt, e.ClosedAt,
		).Scan(&id)
		return err
	})
}

func (p *Postgres) Since(ctx context.Context, from time.Time) (out []models.JournalEntry, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Journal.Since")
		}
	}()
	err = p.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx, selectSince, from)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanTrade)
		return err
	})
	return out, err
}

func scanTrade(row pgx.CollectableRow) (models.JournalEntry, error) {
	var (
		e    models.JournalEntry
		side string
		hold int64
	)
	err := row.Scan(&e.ID, &e.Symbol, &side, &e.Entry, &e.Exit, &e.Stop, &e.Contracts, &e.ContractSize,
		&e.PnL, &e.PnLPct, &e.Fees, &e.TPHit, &e.EntryScore, &hold, &e.Notes, &e.OpenedAt, &e.ClosedAt)
	e.Side = models.Side(side)
	e.HoldTime = time.Duration(hold) * time.Second
	return e, err
}
