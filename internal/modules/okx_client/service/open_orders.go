package service

import (
	"context"
	"net/url"

	"trade_guard/internal/models"
)

// positionSide recovers which position an order belongs to.
func positionSide(side, pos string, reduceOnly bool) models.Side {
	switch pos {
	case "long":
		return models.Long
	case "short":
		return models.Short
	}
	buy := side == "buy"
	if reduceOnly {
		buy = !buy
	}
	if buy {
		return models.Long
	}
	return models.Short
}

// closing reports a long/short-mode order that can only shrink its position.
func closing(side, pos string) bool {
	return (pos == "long" && side == "sell") || (pos == "short" && side == "buy")
}

// OpenOrders lists resting stops (algo book) and regular orders.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	id := InstID(symbol)
	algos, err := get[okxAlgoOrder](ctx, c, "/api/v5/trade/orders-algo-pending", url.Values{
		"ordType":  {"conditional"},
		"instType": {"SWAP"},
		"instId":   {id},
	}, true)
	if err != nil {
		return nil, err
	}
	regular, err := get[okxOrder](ctx, c, "/api/v5/trade/orders-pending", url.Values{
		"instType": {"SWAP"},
		"instId":   {id},
	}, true)
	if err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(algos)+len(regular))
	for _, a := range algos {
		reduce := a.ReduceOnly == "true" || closing(a.Side, a.PosSide)
		o := models.Order{
			Ref:        models.OrderRef{ID: a.AlgoID, Algo: true},
			Symbol:     a.InstID,
			Side:       positionSide(a.Side, a.PosSide, true),
			Type:       models.OrderStop,
			Amount:     parseNum(a.Sz),
			StopPrice:  parseNum(a.SlTriggerPx),
			ReduceOnly: reduce,
		}
		// a conditional carrying only a TP trigger takes profit, it does not protect
		if o.StopPrice <= 0 && parseNum(a.TpTriggerPx) > 0 {
			o.Type = models.OrderTakeProfit
			o.Price = parseNum(a.TpTriggerPx)
		}
		out = append(out, o)
	}
	for _, o := range regular {
		reduce := o.ReduceOnly == "true" || closing(o.Side, o.PosSide)
		t := models.OrderLimit
		if o.OrdType == "market" {
			t = models.OrderMarket
		}
		out = append(out, models.Order{
			Ref:        models.OrderRef{ID: o.OrdID},
			Symbol:     o.InstID,
			Side:       positionSide(o.Side, o.PosSide, reduce),
			Type:       t,
			Amount:     parseNum(o.Sz),
			Price:      parseNum(o.Px),
			ReduceOnly: reduce,
		})
	}
	return out, nil
}
