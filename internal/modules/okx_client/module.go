package okx_client

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/okx_client/service"
	"trade_guard/pkg/logger"
	"trade_guard/pkg/tracing"
)

// Module provides the OKX REST gateway and the tracer its spans report to.
func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(service.NewClient),
		fx.Invoke(startTracer),
	)
}

func startTracer(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) error {
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		Host:         cfg.Tracing.AgentHost,
		Port:         cfg.Tracing.AgentPort,
		SamplerParam: cfg.Tracing.SamplerParam,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := closer.Close(); err != nil {
				log.Warn("tracer close failed", zap.Error(err))
			}
			return nil
		},
	})
	return nil
}
