package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trade_guard/internal/errs"
	"trade_guard/internal/modules/config"
	"trade_guard/pkg/cache"
	"trade_guard/pkg/httpclient"
	"trade_guard/pkg/logger"
	"trade_guard/pkg/ratelimit"
	"trade_guard/pkg/tracing"
)

const tsLayout = "2006-01-02T15:04:05.000Z"

// Client is the OKX v5 REST gateway for USDT-margined perpetual swaps.
type Client struct {
	http   httpclient.HTTPClient
	limits *ratelimit.LimiterStore
	cache  cache.Cache
	log    *logger.Logger
	now    func() time.Time

	apiKey     string
	apiSecret  string
	passph     string
	simulated  bool
	marginMode string
}

func NewClient(cfg *config.Config, c cache.Cache, log *logger.Logger) *Client {
	return &Client{
		http:       httpclient.New(cfg.OKX.BaseURL, cfg.OKX.Timeout),
		limits:     ratelimit.NewLimiterStore(rate.Limit(cfg.OKX.RatePerSecond), cfg.OKX.Burst),
		cache:      c,
		log:        log.With(zap.String("component", "okx")),
		now:        time.Now,
		apiKey:     cfg.OKX.APIKey,
		apiSecret:  cfg.OKX.SecretKey,
		passph:     cfg.OKX.Passphrase,
		simulated:  cfg.OKX.Simulated,
		marginMode: cfg.OKX.MarginMode,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) headers(method, requestPath, body string, private bool) map[string]string {
	h := map[string]string{}
	if c.simulated {
		h["x-simulated-trading"] = "1"
	}
	if !private {
		return h
	}
	ts := c.now().UTC().Format(tsLayout)
	h["OK-ACCESS-KEY"] = c.apiKey
	h["OK-ACCESS-SIGN"] = c.sign(ts, method, requestPath, body)
	h["OK-ACCESS-TIMESTAMP"] = ts
	h["OK-ACCESS-PASSPHRASE"] = c.passph
	return h
}

// exec sends one request and returns the raw body of a 2xx response.
// Failures come back classified by kind.
func (c *Client) exec(ctx context.Context, method, path string, query url.Values, body []byte, private bool) (_ []byte, err error) {
	op := "okx " + method + " " + path
	if private && c.apiKey == "" {
		return nil, errs.E(errs.ConfigInvalid, op, "okx credentials not configured")
	}

	span, ctx := tracing.StartSpan(ctx, op,
		ext.SpanKindRPCClient,
		opentracing.Tag{Key: "okx.private", Value: private},
	)
	defer func() { tracing.Finish(span, err) }()

	if err := c.limits.Wait(ctx, path); err != nil {
		return nil, errs.Wrap(errs.GatewayTransient, op, errors.Wrap(err, "rate limit wait"))
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var resp *httpclient.BaseResponse
	switch method {
	case http.MethodGet:
		resp, err = c.http.Get(ctx, requestPath, c.headers(method, requestPath, "", private))
	default:
		resp, err = c.http.Post(ctx, requestPath, body, c.headers(method, requestPath, string(body), private))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.GatewayTransient, op, errors.Wrap(err, "transport"))
	}
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))

	if resp.StatusCode/100 != 2 {
		var env envelope[ack]
		_ = sonic.Unmarshal(resp.Body, &env)
		return nil, classifyHTTP(op, resp.StatusCode, env.Code, env.Msg, resp.Body)
	}
	return resp.Body, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, payload any, private bool) (envelope[T], error) {
	var env envelope[T]
	var body []byte
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return env, errs.Wrap(errs.ConfigInvalid, path, errors.Wrap(err, "marshal"))
		}
		body = b
	}

	raw, err := c.exec(ctx, method, path, query, body, private)
	if err != nil {
		return env, err
	}
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return env, errors.Wrapf(err, "%s: decode", path)
	}
	return env, nil
}

// get decodes a GET endpoint, failing on a non-zero OKX code.
func get[T any](ctx context.Context, c *Client, path string, query url.Values, private bool) ([]T, error) {
	env, err := call[T](ctx, c, http.MethodGet, path, query, nil, private)
	if err != nil {
		return nil, err
	}
	if env.Code != "0" {
		return nil, classify(path, env.Code, env.Msg)
	}
	return env.Data, nil
}

// post submits a trade request. Per-item rejections take precedence over
// the envelope code, which is generic when an item fails.
func post(ctx context.Context, c *Client, path string, payload any) (ack, error) {
	env, err := call[ack](ctx, c, http.MethodPost, path, nil, payload, true)
	if err != nil {
		return ack{}, err
	}
	if len(env.Data) > 0 && env.Data[0].SCode != "" && env.Data[0].SCode != "0" {
		return ack{}, classify(path, env.Data[0].SCode, env.Data[0].SMsg)
	}
	if env.Code != "0" {
		return ack{}, classify(path, env.Code, env.Msg)
	}
	if len(env.Data) == 0 {
		return ack{}, errors.Errorf("%s: empty response", path)
	}
	return env.Data[0], nil
}

// InstID maps user spellings (BTCUSDT, btc-usdt) onto the swap instrument id.
func InstID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "-SWAP") {
		return s
	}
	if strings.Contains(s, "-") {
		return s + "-SWAP"
	}
	if base, ok := strings.CutSuffix(s, "USDT"); ok && base != "" {
		return base + "-USDT-SWAP"
	}
	return s
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseNum(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
