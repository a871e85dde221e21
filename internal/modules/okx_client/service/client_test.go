package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/config"
	"trade_guard/pkg/cache"
	"trade_guard/pkg/logger"
)

const testSecret = "s3cret"

type recorded struct {
	method string
	path   string
	body   map[string]any
}

type fakeOKX struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []recorded
	routes map[string]func(w http.ResponseWriter, body map[string]any)
}

func (f *fakeOKX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	if key := r.Header.Get("OK-ACCESS-KEY"); key != "" {
		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write([]byte(r.Header.Get("OK-ACCESS-TIMESTAMP") + r.Method + r.URL.RequestURI() + string(raw)))
		assert.Equal(f.t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("OK-ACCESS-SIGN"),
			"signature for %s", r.URL.RequestURI())
		assert.Equal(f.t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
	}

	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		_ = sonic.Unmarshal(raw, &body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, recorded{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	h, ok := f.routes[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, body)
}

func (f *fakeOKX) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.path)
	}
	return out
}

func (f *fakeOKX) last(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].path == path {
			return f.calls[i].body
		}
	}
	return nil
}

func reply(body string) func(http.ResponseWriter, map[string]any) {
	return func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, routes map[string]func(http.ResponseWriter, map[string]any)) (*Client, *fakeOKX) {
	t.Helper()
	fake := &fakeOKX{t: t, routes: routes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.Config{OKX: config.OKX{
		BaseURL:       srv.URL,
		APIKey:        "key",
		SecretKey:     testSecret,
		Passphrase:    "pass",
		Timeout:       2 * time.Second,
		RatePerSecond: 1000,
		Burst:         100,
		MarginMode:    "isolated",
	}}
	c := NewClient(cfg, cache.NewCache(time.Minute, time.Minute), logger.NewNop())
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c, fake
}

func TestInstID(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":       "BTC-USDT-SWAP",
		"btc-usdt":      "BTC-USDT-SWAP",
		"ETH-USDT-SWAP": "ETH-USDT-SWAP",
		" doge-usdt ":   "DOGE-USDT-SWAP",
	}
	for in, want := range tests {
		assert.Equal(t, want, InstID(in), in)
	}
}

func TestCandlesOldestFirstAndConfirmedOnly(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/market/candles": reply(`{"code":"0","msg":"","data":[
			["1700007200000","103","104","102","103.5","10","0","0","0"],
			["1700003600000","102","103","101","103","12","0","0","1"],
			["1700000000000","100","102","99","102","15","0","0","1"]]}`),
	})

	bars, err := c.Candles(context.Background(), "BTCUSDT", models.TF1h, 3)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.InDelta(t, 102, bars[0].Close, 1e-9)
	assert.InDelta(t, 103, bars[1].Close, 1e-9)
	assert.InDelta(t, 12, bars[1].Volume, 1e-9)

	_, err = c.Candles(context.Background(), "BTCUSDT", "7m", 3)
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		route func(http.ResponseWriter, map[string]any)
		kind  errs.Kind
	}{
		{"rate limited code", reply(`{"code":"50011","msg":"Too Many Requests","data":[]}`), errs.GatewayTransient},
		{"system busy", reply(`{"code":"50013","msg":"busy","data":[]}`), errs.GatewayTransient},
		{"http 429", func(w http.ResponseWriter, _ map[string]any) { w.WriteHeader(http.StatusTooManyRequests) }, errs.GatewayTransient},
		{"http 503", func(w http.ResponseWriter, _ map[string]any) { w.WriteHeader(http.StatusServiceUnavailable) }, errs.GatewayTransient},
		{"auth failure", func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":"50113","msg":"Invalid Sign"}`)
		}, errs.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
				"/api/v5/market/ticker": tt.route,
			})
			_, err := c.Ticker(context.Background(), "BTC-USDT-SWAP")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err), err.Error())
		})
	}
}

func TestPlaceStopSetsLeverageFirst(t *testing.T) {
	c, fake := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/account/set-leverage": reply(`{"code":"0","msg":"","data":[{"lever":"10"}]}`),
		"/api/v5/trade/order-algo":     reply(`{"code":"0","msg":"","data":[{"algoId":"A1","sCode":"0","sMsg":""}]}`),
	})

	ref, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:     "BTC-USDT-SWAP",
		Side:       models.Long,
		Type:       models.OrderStop,
		Amount:     3,
		StopPrice:  98.5,
		ReduceOnly: true,
		Leverage:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderRef{ID: "A1", Algo: true}, ref)
	assert.Equal(t, []string{"/api/v5/account/set-leverage", "/api/v5/trade/order-algo"}, fake.paths())

	lev := fake.last("/api/v5/account/set-leverage")
	assert.Equal(t, "10", lev["lever"])
	assert.Equal(t, "long", lev["posSide"])

	body := fake.last("/api/v5/trade/order-algo")
	assert.Equal(t, "sell", body["side"])
	assert.Equal(t, "long", body["posSide"])
	assert.Equal(t, "conditional", body["ordType"])
	assert.Equal(t, "98.5", body["slTriggerPx"])
	assert.Equal(t, "-1", body["slOrdPx"])
	assert.Equal(t, "3", body["sz"])
}

func TestPlaceOrderRejections(t *testing.T) {
	c, fake := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/trade/order": reply(`{"code":"1","msg":"failed","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient"}]}`),
	})

	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC-USDT-SWAP", Side: models.Short, Type: models.OrderMarket, Amount: 1,
	})
	assert.True(t, errs.Is(err, errs.SizingInfeasible), "item code wins over envelope code")
	assert.Equal(t, "sell", fake.last("/api/v5/trade/order")["side"])

	_, err = c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC-USDT-SWAP", Side: models.Long, Type: models.OrderStop, Amount: 1, StopPrice: 90,
	})
	assert.True(t, errs.Is(err, errs.ConfigInvalid), "stops must be reduce-only")
}

func TestMarketMetaCachedLinearOnly(t *testing.T) {
	c, fake := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/public/instruments": func(w http.ResponseWriter, _ map[string]any) {
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"DOGE-USDT-SWAP","tickSz":"0.00001",
				"lotSz":"0.01","minSz":"0.01","ctVal":"10","ctMult":"1","ctType":"linear","settleCcy":"USDT",
				"lever":"75","state":"live","maxMktSz":"1000000"}]}`)
		},
	})

	m, err := c.MarketMeta(context.Background(), "dogeusdt")
	require.NoError(t, err)
	assert.InDelta(t, 10, m.ContractSize, 1e-12)
	assert.Equal(t, 75, m.MaxLeverage)
	assert.InDelta(t, 0.00001, m.TickSize, 1e-12)

	_, err = c.MarketMeta(context.Background(), "DOGE-USDT-SWAP")
	require.NoError(t, err)
	assert.Len(t, fake.paths(), 1, "second lookup served from cache")

	inv, _ := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/public/instruments": reply(`{"code":"0","data":[{"instId":"BTC-USD-SWAP","tickSz":"0.1",
			"lotSz":"1","minSz":"1","ctVal":"100","ctType":"inverse","state":"live"}]}`),
	})
	_, err = inv.MarketMeta(context.Background(), "BTC-USD-SWAP")
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
}

func TestPositionsAndOpenOrders(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter, map[string]any){
		"/api/v5/account/positions": reply(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","posSide":"net","pos":"-3","avgPx":"100","markPx":"99","upl":"0.3","lever":"10"},
			{"instId":"ETH-USDT-SWAP","posSide":"long","pos":"0","avgPx":"","lever":"10"}]}`),
		"/api/v5/trade/orders-algo-pending": reply(`{"code":"0","data":[
			{"algoId":"A9","instId":"BTC-USDT-SWAP","side":"sell","posSide":"long","ordType":"conditional","sz":"2","slTriggerPx":"97"},
			{"algoId":"T1","instId":"BTC-USDT-SWAP","side":"sell","posSide":"long","ordType":"conditional","sz":"2","slTriggerPx":"","tpTriggerPx":"120"}]}`),
		"/api/v5/trade/orders-pending": reply(`{"code":"0","data":[
			{"ordId":"O1","instId":"BTC-USDT-SWAP","side":"sell","posSide":"long","ordType":"limit","sz":"1","px":"110"}]}`),
	})

	pos, err := c.Positions(context.Background(), "BTC-USDT-SWAP", "ETH-USDT-SWAP")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, models.Short, pos[0].Side)
	assert.InDelta(t, 3, pos[0].Contracts, 1e-12)
	assert.Equal(t, 10, pos[0].Leverage)

	orders, err := c.OpenOrders(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, models.Order{
		Ref: models.OrderRef{ID: "A9", Algo: true}, Symbol: "BTC-USDT-SWAP", Side: models.Long,
		Type: models.OrderStop, Amount: 2, StopPrice: 97, ReduceOnly: true,
	}, orders[0])
	assert.Equal(t, models.OrderTakeProfit, orders[1].Type, "tp-only algo is not a stop")
	assert.Zero(t, orders[1].StopPrice)
	assert.InDelta(t, 120, orders[1].Price, 1e-12)
	assert.Equal(t, models.OrderLimit, orders[2].Type)
	assert.True(t, orders[2].ReduceOnly)
}

func TestPrivateCallsNeedCredentials(t *testing.T) {
	c, fake := newTestClient(t, nil)
	c.apiKey = ""

	_, err := c.Balance(context.Background())
	assert.True(t, errs.Is(err, errs.ConfigInvalid))
	assert.Empty(t, fake.paths())
}
