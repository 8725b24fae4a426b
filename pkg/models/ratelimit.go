package models

import "time"

// RateLimitConfig defines a fixed-window quota. Zero MaxTokens or MaxCost disables
// that dimension.
type RateLimitConfig struct {
	Window      time.Duration `json:"window" yaml:"window"`
	MaxRequests int           `json:"max_requests" yaml:"max_requests"`
	MaxTokens   int64         `json:"max_tokens,omitempty" yaml:"max_tokens"`
	MaxCost     float64       `json:"max_cost,omitempty" yaml:"max_cost"`
}

// RateLimitEntry is the usage accrued by one key in the current window.
type RateLimitEntry struct {
	RequestCount int       `json:"request_count"`
	TokenCount   int64     `json:"token_count"`
	CostAccrued  float64   `json:"cost_accrued"`
	WindowStart  time.Time `json:"window_start"`
}
