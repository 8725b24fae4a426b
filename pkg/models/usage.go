package models

import "time"

// UsageRecord tracks per-request token usage and cost for a caller key.
type UsageRecord struct {
	ID           int64     `json:"id"`
	APIKey       string    `json:"api_key"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	TaskType     TaskType  `json:"task_type"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests.
type UsageSummary struct {
	APIKey       string  `json:"api_key"`
	Model        string  `json:"model"`
	RequestCount int     `json:"request_count"`
	TotalInput   int     `json:"total_input"`
	TotalOutput  int     `json:"total_output"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}
