package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

// orderSide maps a position-side request onto the OKX buy/sell side:
// opening a long buys, protecting or closing a long sells.
func orderSide(side models.Side, reduceOnly bool) string {
	buy := side == models.Long
	if reduceOnly {
		buy = !buy
	}
	if buy {
		return "buy"
	}
	return "sell"
}

func posSide(side models.Side) string {
	if side == models.Short {
		return "short"
	}
	return "long"
}

func validateRequest(req models.OrderRequest) error {
	const op = "okx.PlaceOrder"
	switch {
	case req.Symbol == "":
		return errs.E(errs.ConfigInvalid, op, "symbol required")
	case !req.Side.Valid():
		return errs.E(errs.ConfigInvalid, op, "side %q invalid", req.Side)
	case req.Amount <= 0:
		return errs.E(errs.ConfigInvalid, op, "amount %v must be positive", req.Amount)
	case req.Type == models.OrderStop && req.StopPrice <= 0:
		return errs.E(errs.ConfigInvalid, op, "stop order needs a stop price")
	case req.Type == models.OrderStop && !req.ReduceOnly:
		return errs.E(errs.ConfigInvalid, op, "stop orders must be reduce-only")
	case req.Type == models.OrderLimit && req.Price <= 0:
		return errs.E(errs.ConfigInvalid, op, "limit order needs a price")
	case req.Leverage < 0 || req.Leverage > 125:
		return errs.E(errs.ConfigInvalid, op, "leverage %d out of range", req.Leverage)
	}
	return nil
}

// PlaceOrder applies the requested leverage, then submits the order.
// Stops go to the algo book as conditional market-on-trigger orders.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderRef, error) {
	if err := validateRequest(req); err != nil {
		return models.OrderRef{}, err
	}
	id := InstID(req.Symbol)

	if req.Leverage > 0 {
		if err := c.SetLeverage(ctx, id, req.Side, req.Leverage); err != nil {
			return models.OrderRef{}, err
		}
	}

	switch req.Type {
	case models.OrderStop:
		return c.placeStop(ctx, id, req)
	case models.OrderMarket, models.OrderLimit:
		return c.placeRegular(ctx, id, req)
	default:
		return models.OrderRef{}, errs.E(errs.ConfigInvalid, "okx.PlaceOrder", "order type %q unsupported", req.Type)
	}
}

func (c *Client) SetLeverage(ctx context.Context, instID string, side models.Side, leverage int) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": c.marginMode,
	}
	if c.marginMode == "isolated" {
		body["posSide"] = posSide(side)
	}
	_, err := post(ctx, c, "/api/v5/account/set-leverage", body)
	return err
}

func (c *Client) placeStop(ctx context.Context, instID string, req models.OrderRequest) (models.OrderRef, error) {
	body := map[string]string{
		"instId":          instID,
		"tdMode":          c.marginMode,
		"side":            orderSide(req.Side, true),
		"posSide":         posSide(req.Side),
		"ordType":         "conditional",
		"sz":              formatNum(req.Amount),
		"slTriggerPx":     formatNum(req.StopPrice),
		"slOrdPx":         "-1",
		"slTriggerPxType": "last",
		"reduceOnly":      "true",
	}
	a, err := post(ctx, c, "/api/v5/trade/order-algo", body)
	if err != nil {
		return models.OrderRef{}, err
	}
	if a.AlgoID == "" {
		return models.OrderRef{}, errs.E(errs.Unknown, "okx.placeStop", "empty algoId")
	}
	c.log.Info("stop placed",
		zap.String("inst", instID), zap.Float64("trigger", req.StopPrice), zap.String("algo", a.AlgoID))
	return models.OrderRef{ID: a.AlgoID, Algo: true}, nil
}

func (c *Client) placeRegular(ctx context.Context, instID string, req models.OrderRequest) (models.OrderRef, error) {
	body := map[string]any{
		"instId":  instID,
		"tdMode":  c.marginMode,
		"side":    orderSide(req.Side, req.ReduceOnly),
		"posSide": posSide(req.Side),
		"ordType": string(req.Type),
		"sz":      formatNum(req.Amount),
	}
	if req.Type == models.OrderLimit {
		body["px"] = formatNum(req.Price)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	a, err := post(ctx, c, "/api/v5/trade/order", body)
	if err != nil {
		return models.OrderRef{}, err
	}
	c.log.Info("order placed",
		zap.String("inst", instID), zap.String("type", string(req.Type)),
		zap.Float64("size", req.Amount), zap.String("ord", a.OrdID))
	return models.OrderRef{ID: a.OrdID}, nil
}
