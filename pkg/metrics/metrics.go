// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "silentengine"

// LatencyBuckets are histogram buckets for provider call latency, in seconds.
var LatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120}

var (
	// Requests counts engine generations by final provider and outcome.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total generation requests handled by the engine",
		},
		[]string{"task_type", "provider", "status"},
	)

	// ProviderCalls counts individual provider generate calls.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total provider generate calls by outcome",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency tracks provider call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider generate call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// Tokens counts tokens by provider and direction (input/output).
	Tokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// Cost accumulates spend by provider.
	Cost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_total",
			Help:      "Total estimated spend in USD",
		},
		[]string{"provider"},
	)

	// Fallbacks counts fallback alerts.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total fallbacks from a primary to a backup provider",
		},
		[]string{"primary", "backup", "reason"},
	)

	// HealthChecks counts real health probes (cached verdicts are not counted).
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total provider health probes by result",
		},
		[]string{"provider", "result"},
	)

	// RateLimited counts denied admissions by the exhausted dimension.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total requests denied by the rate limiter",
		},
		[]string{"reason"},
	)

	// JSONAttempts counts generate-json attempts by parse outcome.
	JSONAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "json_attempts_total",
			Help:      "Total JSON-mode generation attempts by parse outcome",
		},
		[]string{"outcome"},
	)

	// LogWriteErrors counts failed request log flushes.
	LogWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_log_write_errors_total",
			Help:      "Total failed request log partition writes",
		},
	)
)
