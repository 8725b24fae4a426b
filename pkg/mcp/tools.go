package mcp

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/dashboard"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"engine_usage_overview":  handleOverview,
	"engine_cost_projection": handleCostProjection,
	"engine_usage_stats":     handleUsageStats,
}

var allTools = []ToolDefinition{
	{
		Name:        "engine_usage_overview",
		Description: "Summarize requests, cost, tokens, latency, error and fallback rates over the last N days, broken down by model, task type and day.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "Number of days to include (optional, default 7)",
				},
			},
		},
	},
	{
		Name:        "engine_cost_projection",
		Description: "Project daily, weekly, monthly and yearly spend from the last 7 days of requests.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "engine_usage_stats",
		Description: "Show token usage and cost per caller key and model. With api_key, also report that key's totals.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"api_key": map[string]any{
					"type":        "string",
					"description": "Filter by caller key (optional, omit for all keys)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional, defaults to start of month)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

type overviewArgs struct {
	Days int `json:"days"`
}

func handleOverview(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args overviewArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Days <= 0 {
		args.Days = dashboard.DefaultDays
	}
	o, err := s.dashboard.UsageOverview(ctx, args.Days)
	if err != nil {
		return errorResult("Error building overview: " + err.Error())
	}
	return textResult(formatOverview(args.Days, o))
}

func handleCostProjection(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	p, err := s.dashboard.CostProjection(ctx)
	if err != nil {
		return errorResult("Error projecting cost: " + err.Error())
	}
	return textResult(formatProjection(p))
}

type usageStatsArgs struct {
	APIKey string `json:"api_key"`
	Since  string `json:"since"`
}

func handleUsageStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage tracking is not configured.")
	}
	var args usageStatsArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	since := beginningOfMonth(s.now())
	if args.Since != "" {
		t, err := time.Parse(time.DateOnly, args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	rows, err := s.tracker.Summary(ctx, args.APIKey, since)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	text := FormatSummary(rows)
	if args.APIKey == "" || len(rows) == 0 {
		return textResult(text)
	}

	tokens, cost, err := s.tracker.TotalByKey(ctx, args.APIKey, since)
	if err != nil {
		return errorResult("Error fetching totals: " + err.Error())
	}
	return textResult(text + formatTotals(args.APIKey, since, tokens, cost))
}

func beginningOfMonth(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
