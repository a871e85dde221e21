package service

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

const settleCcy = "USDT"

// Balance reports USDT equity and what is free to post as margin.
func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	data, err := get[okxBalance](ctx, c, "/api/v5/account/balance", url.Values{"ccy": {settleCcy}}, true)
	if err != nil {
		return models.Balance{}, err
	}
	for _, acct := range data {
		for _, d := range acct.Details {
			if d.Ccy != settleCcy {
				continue
			}
			free := parseNum(d.AvailEq)
			if free == 0 {
				free = parseNum(d.AvailBal)
			}
			return models.Balance{Free: free, Total: parseNum(d.Eq)}, nil
		}
	}
	return models.Balance{}, errs.E(errs.Unknown, "okx.Balance", "no %s balance in account", settleCcy)
}

// Positions lists open swap positions, optionally restricted to symbols.
// Both long/short and net position modes are understood.
func (c *Client) Positions(ctx context.Context, symbols ...string) ([]models.Position, error) {
	q := url.Values{"instType": {"SWAP"}}
	if len(symbols) > 0 {
		ids := make([]string, 0, len(symbols))
		for _, s := range symbols {
			ids = append(ids, InstID(s))
		}
		q.Set("instId", strings.Join(ids, ","))
	}
	data, err := get[okxPosition](ctx, c, "/api/v5/account/positions", q, true)
	if err != nil {
		return nil, err
	}

	out := make([]models.Position, 0, len(data))
	for _, p := range data {
		pos := parseNum(p.Pos)
		if pos == 0 {
			continue
		}
		side := models.Long
		switch p.PosSide {
		case "short":
			side = models.Short
		case "net":
			if pos < 0 {
				side = models.Short
			}
		}
		lev, _ := strconv.Atoi(strings.Split(p.Lever, ".")[0])
		out = append(out, models.Position{
			Symbol:        p.InstID,
			Side:          side,
			Contracts:     math.Abs(pos),
			Entry:         parseNum(p.AvgPx),
			MarkPrice:     parseNum(p.MarkPx),
			UnrealizedPnL: parseNum(p.Upl),
			Leverage:      lev,
		})
	}
	return out, nil
}
