package journal

import (
	"context"

	"go.uber.org/fx"

	"trade_guard/internal/errs"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/journal/service"
	"trade_guard/internal/modules/postgres"
	"trade_guard/pkg/db"
)

// Module wires the journal backend named in config.
func Module(cfg *config.Config) fx.Option {
	switch cfg.Journal.Backend {
	case "postgres":
		return fx.Module("journal",
			postgres.Module(),
			fx.Provide(newPostgres, service.NewJournal),
		)
	case "none":
		return fx.Module("journal",
			fx.Provide(
				func() service.Store { return service.Nop{} },
				service.NewJournal,
			),
		)
	default:
		return fx.Module("journal",
			fx.Provide(newFile, service.NewJournal),
		)
	}
}

func newFile(cfg *config.Config) (service.Store, error) {
	if cfg.Journal.Path == "" {
		return nil, errs.E(errs.ConfigInvalid, "journal", "journal.path is empty")
	}
	return service.NewFile(cfg.Journal.Path)
}

func newPostgres(lc fx.Lifecycle, tm db.TxManager) service.Store {
	store := service.NewPostgres(tm)
	lc.Append(fx.StartHook(func(ctx context.Context) error {
		return store.Migrate(ctx)
	}))
	return store
}
