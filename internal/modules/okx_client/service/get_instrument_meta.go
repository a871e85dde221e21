package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

const metaTTL = time.Hour

// MarketMeta returns the contract specification, cached for an hour.
// Only linear (USDT-settled) contracts are supported.
func (c *Client) MarketMeta(ctx context.Context, symbol string) (models.MarketMeta, error) {
	const op = "okx.MarketMeta"
	id := InstID(symbol)
	key := "meta:" + id
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if m, ok := v.(models.MarketMeta); ok {
				return m, nil
			}
		}
	}

	data, err := get[Instrument](ctx, c, "/api/v5/public/instruments", url.Values{
		"instType": {"SWAP"},
		"instId":   {id},
	}, false)
	if err != nil {
		return models.MarketMeta{}, err
	}
	if len(data) == 0 {
		return models.MarketMeta{}, errs.E(errs.ConfigInvalid, op, "instrument %s not found", id)
	}

	inst := data[0]
	if inst.State != "" && inst.State != "live" {
		return models.MarketMeta{}, errs.E(errs.ConfigInvalid, op, "instrument %s not live: state=%s", id, inst.State)
	}
	if t := strings.ToLower(inst.CtType); t != "" && t != "linear" {
		return models.MarketMeta{}, errs.E(errs.ConfigInvalid, op, "instrument %s is %s; only linear contracts are supported", id, inst.CtType)
	}

	parsePos := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, errs.E(errs.ConfigInvalid, op, "%s %s invalid: %q", id, name, s)
		}
		return v, nil
	}

	lotSz, err := parsePos("lotSz", inst.LotSz)
	if err != nil {
		return models.MarketMeta{}, err
	}
	minSz, err := parsePos("minSz", inst.MinSz)
	if err != nil {
		return models.MarketMeta{}, err
	}
	tickSz, err := parsePos("tickSz", inst.TickSz)
	if err != nil {
		return models.MarketMeta{}, err
	}
	ctVal, err := parsePos("ctVal", inst.CtVal)
	if err != nil {
		return models.MarketMeta{}, err
	}
	ctMult := 1.0
	if v := parseNum(inst.CtMult); v > 0 {
		ctMult = v
	}
	maxLev, _ := strconv.Atoi(strings.Split(inst.Lever, ".")[0])

	meta := models.MarketMeta{
		Symbol:        inst.InstID,
		ContractSize:  ctVal * ctMult,
		MaxLeverage:   maxLev,
		TickSize:      tickSz,
		LotSize:       lotSz,
		MinSize:       minSz,
		MaxMarketSize: parseNum(inst.MaxMktSz),
		SettleCcy:     inst.SettleCcy,
	}
	if c.cache != nil {
		c.cache.Set(key, meta, metaTTL)
	}
	return meta, nil
}
