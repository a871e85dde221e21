package scanner

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/analysis"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/scanner/service"
	"trade_guard/internal/notify"
	"trade_guard/pkg/cache"
	"trade_guard/pkg/logger"

	okxsvc "trade_guard/internal/modules/okx_client/service"
)

// Module wires the scan pipeline onto the REST gateway. Requires the
// config, okx_client and notify modules.
func Module() fx.Option {
	return fx.Module("scanner",
		fx.Provide(
			NewFetcher,
			NewScanner,
		),
	)
}

func NewFetcher(cfg *config.Config, client *okxsvc.Client, c cache.Cache, log *logger.Logger) *analysis.Fetcher {
	return analysis.NewFetcher(client, c, cfg.Analysis, nil, log)
}

func NewScanner(cfg *config.Config, client *okxsvc.Client, f *analysis.Fetcher, n *notify.Notifier, log *logger.Logger) *service.Scanner {
	symbols := make([]string, 0, len(cfg.Scan.Symbols))
	for _, s := range cfg.Scan.Symbols {
		symbols = append(symbols, okxsvc.InstID(s))
	}
	return service.New(client, f, cfg.Scorer(), n, service.Options{
		Watchlist:   symbols,
		TopN:        cfg.Scan.TopN,
		MinBand:     cfg.MinBand(),
		Concurrency: cfg.Scan.Concurrency,
	}, log.With(zap.String("component", "scanner")))
}
