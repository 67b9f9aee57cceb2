package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/florianilch/dng-proxy/internal/proxy"
)

// Health is the readiness flag behind GET /health/readiness. It turns true
// once the listener is bound and false when shutdown begins. Whether DNG
// credentials are configured is reported next to it as dng_configured but
// never makes the proxy unready: the DNG routes answer ConfigurationError
// instead.
type Health struct {
	ready atomic.Bool
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth returns a Health that is not ready.
func NewHealth() *Health {
	return &Health{}
}

// SetReady records the readiness state and logs transitions.
func (h *Health) SetReady(ready bool) {
	if h.ready.Swap(ready) != ready {
		slog.Info("readiness changed", slog.Bool("ready", ready))
	}
}

// IsReady is safe for concurrent use with SetReady.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
