package service

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trade_guard/internal/models"
	"trade_guard/internal/modules/config"
	"trade_guard/internal/modules/okx_client/service"
	"trade_guard/pkg/logger"
)

// Fallback serves prices and candles when the stream has nothing fresh.
type Fallback interface {
	Ticker(ctx context.Context, symbol string) (models.Ticker, error)
	Candles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

// Feed keeps the latest streamed price per instrument. Readers get the
// streamed price while it is fresh and the REST ticker otherwise.
type Feed struct {
	url      string
	wsDialer *websocket.Dialer
	rest     Fallback
	log      *logger.Logger
	maxAge   time.Duration
	ping     time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	last   map[string]models.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

func NewFeed(cfg *config.Config, rest *service.Client, log *logger.Logger) *Feed {
	return newFeed(cfg.OKX.WSPublicURL, rest, log)
}

func newFeed(url string, rest Fallback, log *logger.Logger) *Feed {
	return &Feed{
		url:      url,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		rest:     rest,
		log:      log.With(zap.String("component", "okx_ws")),
		maxAge:   5 * time.Second,
		ping:     20 * time.Second,
		now:      time.Now,
		last:     make(map[string]models.Ticker),
	}
}

// Start streams tickers for the given symbols until Stop.
func (f *Feed) Start(symbols ...string) {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, service.InstID(s))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	f.mu.Lock()
	f.cancel, f.done = cancel, done
	f.mu.Unlock()

	go func() {
		defer close(done)
		f.run(ctx, ids)
	}()
}

func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Feed) store(t models.Ticker) {
	f.mu.Lock()
	f.last[t.Symbol] = t
	f.mu.Unlock()
}

func (f *Feed) Ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	id := service.InstID(symbol)
	f.mu.RLock()
	t, ok := f.last[id]
	f.mu.RUnlock()
	if ok && f.now().Sub(t.Time) <= f.maxAge {
		return t, nil
	}
	return f.rest.Ticker(ctx, symbol)
}

func (f *Feed) Candles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	return f.rest.Candles(ctx, symbol, tf, limit)
}
