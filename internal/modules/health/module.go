package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/health/service"
	"trade_guard/pkg/logger"
)

type trailView struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Phase       string  `json:"phase"`
	Entry       float64 `json:"entry"`
	Stop        float64 `json:"stop"`
	StopOrder   string  `json:"stopOrder"`
	LastPrice   float64 `json:"lastPrice"`
	R           float64 `json:"r"`
	Moves       int     `json:"moves"`
	Halted      bool    `json:"halted"`
	ReportedAgo int64   `json:"reportedAgoSec"`
}

func NewMux(state *service.State) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":     state.Ready(),
			"uptimeSec": int64(state.Uptime().Seconds()),
		}
		if t, at := state.Trail(); t != nil {
			resp["trail"] = trailView{
				Symbol:      t.Symbol,
				Side:        string(t.Side),
				Phase:       string(t.Phase),
				Entry:       t.Entry,
				Stop:        t.CurrentStop,
				StopOrder:   t.StopOrder.ID,
				LastPrice:   t.LastPrice,
				R:           t.LastR,
				Moves:       t.Moves,
				Halted:      t.Halted,
				ReportedAgo: int64(time.Since(at).Seconds()),
			}
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux, state *service.State, log *logger.Logger) {
	if !cfg.Health.Enabled {
		state.SetReady(true)
		return
	}
	srv := &http.Server{
		Addr:              cfg.Health.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Health.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("health server stopped", zap.Error(err))
				}
			}()
			state.SetReady(true)
			log.Info("health endpoints listening", zap.String("addr", cfg.Health.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
