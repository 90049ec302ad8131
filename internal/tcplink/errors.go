package tcplink

import (
	"errors"

	"github.com/kstaniek/go-uart-bridge/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrConnWrite = errors.New("conn_write")
	ErrNoClient  = errors.New("no client attached")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnWrite), errors.Is(err, ErrNoClient):
		return metrics.ErrHostWrite
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrHostAccept
	default:
		return "other"
	}
}
