package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/silentengine/silentengine/pkg/metrics"
)

// DefaultHealthInterval is how long a health verdict is trusted.
const DefaultHealthInterval = 5 * time.Minute

// HealthTracker caches a provider's health verdict until validUntil. A probe that
// fails marks the provider unhealthy for a full interval, so a failing backend is
// probed at most once per interval.
type HealthTracker struct {
	mu         sync.Mutex
	name       string
	interval   time.Duration
	now        func() time.Time
	log        *slog.Logger
	healthy    bool
	validUntil time.Time
	checkedAt  time.Time
}

// NewHealthTracker returns a tracker that starts healthy with an expired verdict,
// so the first Check probes.
func NewHealthTracker(name string, interval time.Duration, now func() time.Time, log *slog.Logger) *HealthTracker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthTracker{name: name, interval: interval, now: now, log: log, healthy: true}
}

// Check returns the cached verdict while it is valid; otherwise it runs probe and
// caches the result. Callers arriving while a probe is in flight see the previous verdict.
func (h *HealthTracker) Check(ctx context.Context, probe func(context.Context) error) bool {
	h.mu.Lock()
	now := h.now()
	if now.Before(h.validUntil) {
		healthy := h.healthy
		h.mu.Unlock()
		return healthy
	}
	h.validUntil = now.Add(h.interval)
	h.mu.Unlock()

	err := probe(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = err == nil
	h.checkedAt = h.now()
	h.validUntil = h.checkedAt.Add(h.interval)
	if err != nil {
		metrics.HealthChecks.WithLabelValues(h.name, "unhealthy").Inc()
		h.log.Warn("provider health check failed", "provider", h.name, "error", err)
	} else {
		metrics.HealthChecks.WithLabelValues(h.name, "healthy").Inc()
	}
	return h.healthy
}

// Status returns the cached verdict and when it was last probed, without probing.
func (h *HealthTracker) Status() (healthy bool, checkedAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy, h.checkedAt
}
