package service

import (
	"net/http"
	"strings"

	"trade_guard/internal/errs"
)

// transientCodes are OKX system busy / rate-limit codes worth retrying.
var transientCodes = map[string]bool{
	"50001": true, // service temporarily unavailable
	"50004": true, // endpoint request timeout
	"50011": true, // rate limit reached
	"50013": true, // system busy
}

// insufficientCodes reject an order for lack of margin or size headroom.
var insufficientCodes = map[string]bool{
	"51008": true,
	"51004": true,
	"51202": true,
}

func classify(op, code, msg string) error {
	switch {
	case transientCodes[code]:
		return errs.E(errs.GatewayTransient, op, "okx %s: %s", code, msg)
	case insufficientCodes[code]:
		return errs.E(errs.SizingInfeasible, op, "okx %s: %s", code, msg)
	case strings.HasPrefix(code, "51"):
		return errs.E(errs.ConfigInvalid, op, "okx rejected parameters %s: %s", code, msg)
	default:
		return errs.E(errs.Unknown, op, "okx %s: %s", code, msg)
	}
}

func classifyHTTP(op string, status int, code, msg string, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return errs.E(errs.GatewayTransient, op, "http %d: %s", status, truncate(body))
	}
	if code != "" && code != "0" {
		return classify(op, code, msg)
	}
	return errs.E(errs.Unknown, op, "http %d: %s", status, truncate(body))
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
