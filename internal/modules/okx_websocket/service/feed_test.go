package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

type restStub struct {
	tickers atomic.Int32
}

func (r *restStub) Ticker(_ context.Context, symbol string) (models.Ticker, error) {
	r.tickers.Add(1)
	return models.Ticker{Symbol: symbol, Last: 1, Time: time.Now()}, nil
}

func (r *restStub) Candles(context.Context, string, models.Timeframe, int) ([]models.Bar, error) {
	return nil, nil
}

func tickerServer(t *testing.T, last string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string              `json:"op"`
			Args []map[string]string `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "subscribe", sub.Op)
		assert.Equal(t, "tickers", sub.Args[0]["channel"])

		frame := fmt.Sprintf(`{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},
			"data":[{"instId":"BTC-USDT-SWAP","last":"%s","ts":"%d"}]}`, last, time.Now().UnixMilli())
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedServesStreamedPrice(t *testing.T) {
	srv := tickerServer(t, "101.5")
	rest := &restStub{}
	f := newFeed("ws"+strings.TrimPrefix(srv.URL, "http"), rest, logger.NewNop())
	f.Start("BTCUSDT")
	defer f.Stop()

	require.Eventually(t, func() bool {
		f.mu.RLock()
		defer f.mu.RUnlock()
		_, ok := f.last["BTC-USDT-SWAP"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	before := rest.tickers.Load()
	tk, err := f.Ticker(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.InDelta(t, 101.5, tk.Last, 1e-9)
	assert.Equal(t, before, rest.tickers.Load(), "fresh streamed price skips REST")

	f.now = func() time.Time { return time.Now().Add(time.Minute) }
	tk, err = f.Ticker(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.InDelta(t, 1, tk.Last, 1e-9, "stale price falls back to REST")
}

func TestFeedWithoutStreamUsesREST(t *testing.T) {
	rest := &restStub{}
	f := newFeed("ws://127.0.0.1:1", rest, logger.NewNop())

	tk, err := f.Ticker(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 1, tk.Last, 1e-9)
	assert.EqualValues(t, 1, rest.tickers.Load())
	f.Stop()
}
