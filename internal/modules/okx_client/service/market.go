package service

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

const maxCandleLimit = 300

func okxBar(tf models.Timeframe) (string, error) {
	switch tf {
	case "1m", "3m", "5m", models.TF15m, "30m":
		return string(tf), nil
	case models.TF1h:
		return "1H", nil
	case "2h":
		return "2H", nil
	case models.TF4h:
		return "4H", nil
	case "12h":
		return "12H", nil
	case models.TF1d:
		return "1D", nil
	}
	return "", errs.E(errs.ConfigInvalid, "okx.bar", "unsupported timeframe %q", tf)
}

// Candles returns up to limit closed bars, oldest first. The bar still
// forming is dropped.
func (c *Client) Candles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	bar, err := okxBar(tf)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, maxCandleLimit)

	rows, err := get[[]string](ctx, c, "/api/v5/market/candles", url.Values{
		"instId": {InstID(symbol)},
		"bar":    {bar},
		"limit":  {strconv.Itoa(limit)},
	}, false)
	if err != nil {
		return nil, err
	}

	// OKX returns newest first.
	out := make([]models.Bar, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
		if len(row) < 6 {
			continue
		}
		if len(row) >= 9 && row[8] != "1" {
			continue
		}
		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		b := models.Bar{
			Time:   time.UnixMilli(tsMs).UTC(),
			Open:   parseNum(row[1]),
			High:   parseNum(row[2]),
			Low:    parseNum(row[3]),
			Close:  parseNum(row[4]),
			Volume: parseNum(row[5]),
		}
		if b.Close <= 0 {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Client) Ticker(ctx context.Context, symbol string) (models.Ticker, error) {
	id := InstID(symbol)
	data, err := get[okxTicker](ctx, c, "/api/v5/market/ticker", url.Values{"instId": {id}}, false)
	if err != nil {
		return models.Ticker{}, err
	}
	if len(data) == 0 {
		return models.Ticker{}, errs.E(errs.Unknown, "okx.ticker", "no ticker for %s", id)
	}
	t := data[0]
	last := parseNum(t.Last)
	if last <= 0 {
		return models.Ticker{}, errs.E(errs.GatewayTransient, "okx.ticker", "last price %q for %s", t.Last, id)
	}
	ts := time.Now()
	if ms, err := strconv.ParseInt(t.Ts, 10, 64); err == nil {
		ts = time.UnixMilli(ms)
	}
	return models.Ticker{Symbol: id, Last: last, Time: ts.UTC()}, nil
}

// TopVolatile ranks USDT swaps by 24h range relative to last price.
func (c *Client) TopVolatile(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	tickers, err := get[okxTicker](ctx, c, "/api/v5/market/tickers", url.Values{"instType": {"SWAP"}}, false)
	if err != nil {
		return nil, err
	}

	type rec struct {
		sym   string
		score float64
	}
	arr := make([]rec, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, "-USDT-SWAP") {
			continue
		}
		last, high, low := parseNum(t.Last), parseNum(t.High24h), parseNum(t.Low24h)
		if last <= 0 || high <= low {
			continue
		}
		arr = append(arr, rec{sym: t.InstID, score: (high - low) / last})
	}

	sort.Slice(arr, func(i, j int) bool { return arr[i].score > arr[j].score })
	n = min(n, len(arr))
	res := make([]string, 0, n)
	for _, r := range arr[:n] {
		res = append(res, r.sym)
	}
	c.log.Debug("top volatile swaps", zap.Int("candidates", len(arr)), zap.Strings("picked", res))
	return res, nil
}
