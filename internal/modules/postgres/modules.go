package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/fx"

	"trade_guard/internal/errs"
	"trade_guard/internal/modules/config"
	"trade_guard/pkg/db"
)

const connectTimeout = 10 * time.Second

// Module provides the transaction manager. It is only included by commands
// that are configured with a postgres journal.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			fx.Annotate(NewTxManager, fx.As(fx.Self()), fx.As(new(db.TxManager))),
		),
	)
}

func NewTxManager(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errs.E(errs.ConfigInvalid, "postgres", "postgres.dsn is empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, errors.Wrap(err, "ping")
	}

	m := db.NewPgTxManager(poolMaster)
	lc.Append(fx.StopHook(m.Close))
	return m, nil
}
