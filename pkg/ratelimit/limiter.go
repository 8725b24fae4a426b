// Package ratelimit enforces fixed-window request, token and cost quotas per caller key.
//
// Admit checks a key's quota without charging it; RecordUsage charges it after the
// call. Two concurrent requests for the same key can both be admitted before either
// records usage, so the limit is a soft throttle, not a strict quota.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/silentengine/silentengine/pkg/metrics"
	"github.com/silentengine/silentengine/pkg/models"
)

// DefaultKey is the key used when a caller presents no identity.
const DefaultKey = "default"

// Limiter tracks per-key usage windows.
type Limiter struct {
	mu         sync.Mutex
	defaultCfg models.RateLimitConfig
	configs    map[string]models.RateLimitConfig
	entries    map[string]*models.RateLimitEntry
	now        func() time.Time
	log        *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a Limiter whose keys fall back to defaultCfg.
func New(defaultCfg models.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{
		defaultCfg: defaultCfg,
		configs:    make(map[string]models.RateLimitConfig),
		entries:    make(map[string]*models.RateLimitEntry),
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLimit overrides the quota for one key.
func (l *Limiter) SetLimit(key string, cfg models.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[key] = cfg
}

func (l *Limiter) configFor(key string) models.RateLimitConfig {
	if cfg, ok := l.configs[key]; ok {
		return cfg
	}
	return l.defaultCfg
}

// Admit reports whether key may start a request expected to use estimatedTokens
// and estimatedCost. It resets an expired window but never increments counters.
func (l *Limiter) Admit(key string, estimatedTokens int64, estimatedCost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(key)
	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.WindowStart) > cfg.Window {
		entry = &models.RateLimitEntry{WindowStart: now}
		l.entries[key] = entry
	}

	reason := ""
	switch {
	case entry.RequestCount >= cfg.MaxRequests:
		reason = "requests"
	case cfg.MaxTokens > 0 && entry.TokenCount+estimatedTokens > cfg.MaxTokens:
		reason = "tokens"
	case cfg.MaxCost > 0 && entry.CostAccrued+estimatedCost > cfg.MaxCost:
		reason = "cost"
	}
	if reason != "" {
		metrics.RateLimited.WithLabelValues(reason).Inc()
		l.log.Debug("rate limit exceeded", "reason", reason, "requests", entry.RequestCount)
		return false
	}
	return true
}

// RecordUsage charges one request plus its actual tokens and cost to key's current
// window. Keys that were never admitted are ignored.
func (l *Limiter) RecordUsage(key string, tokens int64, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.RequestCount++
	entry.TokenCount += tokens
	entry.CostAccrued += cost
}

// Usage returns a snapshot of key's current window.
func (l *Limiter) Usage(key string) (models.RateLimitEntry, models.RateLimitConfig, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := l.configFor(key)
	entry, ok := l.entries[key]
	if !ok {
		return models.RateLimitEntry{}, cfg, false
	}
	return *entry, cfg, true
}

// RetryAfter returns how long until key's window resets, rounded up to whole
// seconds and at least one second.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(key)
	entry, ok := l.entries[key]
	if !ok {
		return time.Second
	}
	remaining := entry.WindowStart.Add(cfg.Window).Sub(l.now())
	secs := math.Ceil(remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Sweep drops entries idle for more than two windows and returns how many were removed.
// An expired entry that is not yet swept is still reset on its next Admit.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.entries {
		if now.Sub(entry.WindowStart) > 2*l.configFor(key).Window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("swept idle rate limit entries", "removed", n)
			}
		}
	}
}
