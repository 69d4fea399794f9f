package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingUpstream(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. The commerce API being
// down degrades readiness; sessions alone cannot serve a storefront.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	upstreamStatus := "ok"
	if err := h.Checker.PingUpstream(ctx, h.upstreamTimeout()); err != nil {
		upstreamStatus = err.Error()
	}
	status := map[string]string{
		"redis":    redisStatus,
		"upstream": upstreamStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if redisStatus != "ok" || upstreamStatus != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}

func (h Handler) upstreamTimeout() time.Duration {
	if h.UpstreamTimeout <= 0 {
		return time.Second
	}
	return h.UpstreamTimeout
}
