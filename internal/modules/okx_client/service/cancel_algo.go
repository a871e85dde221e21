package service

import (
	"context"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
)

func (c *Client) CancelOrder(ctx context.Context, symbol string, ref models.OrderRef) error {
	if ref.Empty() {
		return errs.E(errs.ConfigInvalid, "okx.CancelOrder", "empty order ref")
	}
	id := InstID(symbol)
	if ref.Algo {
		_, err := post(ctx, c, "/api/v5/trade/cancel-algos", []map[string]string{{"instId": id, "algoId": ref.ID}})
		return err
	}
	_, err := post(ctx, c, "/api/v5/trade/cancel-order", map[string]string{"instId": id, "ordId": ref.ID})
	return err
}
