package config

import (
	"go.uber.org/fx"

	"trade_guard/pkg/cache"
	"trade_guard/pkg/logger"
)

// Module supplies an already loaded config; commands load it first so
// the set of modules can depend on it.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewCache,
		),
	)
}

// NewLogger builds the process logger from the log section.
func NewLogger(lc fx.Lifecycle, cfg *Config) (*logger.Logger, error) {
	l, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = l.Sync()
	}))
	return l, nil
}

// NewCache is the process-wide cache for candles and contract metadata.
func NewCache(cfg *Config) cache.Cache {
	return cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval)
}
