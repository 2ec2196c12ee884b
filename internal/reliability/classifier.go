package reliability

import (
	"context"
	"errors"
	"net"
)

// Failure kinds reported for upstream model calls.
const (
	KindTimeout  = "timeout"
	KindNetwork  = "network"
	KindStatus   = "status"
	KindAPI      = "api"
	KindCanceled = "canceled"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyError maps a transport error to a failure kind and whether a
// second backend is worth trying.
func ClassifyError(err error) (kind string, retryable bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout, true
		}
		return KindNetwork, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork, true
	}
	return KindAPI, true
}
