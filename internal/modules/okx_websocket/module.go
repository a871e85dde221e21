package okx_websocket

import (
	"go.uber.org/fx"

	"trade_guard/internal/modules/okx_websocket/service"
)

// Module provides the streamed price feed. Callers choose what to watch
// with Start; the stream is closed on shutdown.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(service.NewFeed),
		fx.Invoke(func(lc fx.Lifecycle, f *service.Feed) {
			lc.Append(fx.StopHook(f.Stop))
		}),
	)
}
