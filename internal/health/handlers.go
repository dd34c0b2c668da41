package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-cart/internal/common"
)

// Pinger is a dependency that can be probed for readiness.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. Shutdown flips it to false so load balancers
// drain the instance before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	// Redis is nil when carts are kept in memory only.
	Redis        Pinger
	RedisTimeout time.Duration
	// Sessions reports the number of live storefronts, if set.
	Sessions func() int
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. A missing Redis is
// reported as disabled and does not fail the probe.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	healthy := ready.Load()
	if !healthy {
		status["status"] = "shutting_down"
	}

	redisStatus := "disabled"
	if h.Redis != nil {
		redisStatus = "ok"
		if err := h.Redis.Ping(r.Context(), h.redisTimeout()); err != nil {
			redisStatus = err.Error()
			healthy = false
			status["status"] = "degraded"
		}
	}
	status["redis"] = redisStatus
	if h.Sessions != nil {
		status["sessions"] = h.Sessions()
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
