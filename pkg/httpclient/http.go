package httpclient

import (
	"context"
	"net/http"
)

type BaseResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// HTTPClient sends pre-encoded requests and hands back the raw body so
// callers can sign exactly what goes on the wire and decode it themselves.
type HTTPClient interface {
	Get(ctx context.Context, endpoint string, headers map[string]string) (*BaseResponse, error)
	Post(ctx context.Context, endpoint string, body []byte, headers map[string]string) (*BaseResponse, error)
}
