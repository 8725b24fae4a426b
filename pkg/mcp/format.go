package mcp

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

// FormatSummary renders usage summaries as a text table.
func FormatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-25s %8s %10s %10s %10s %10s\n",
		"API Key", "Model", "Requests", "Input", "Output", "Total", "Cost")
	b.WriteString(strings.Repeat("-", 98) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %-25s %8d %10d %10d %10d %10.4f\n",
			shortKey(r.APIKey), r.Model, r.RequestCount, r.TotalInput, r.TotalOutput, r.TotalTokens, r.TotalCost)
	}
	return b.String()
}

func formatTotals(key string, since time.Time, tokens int64, cost float64) string {
	return fmt.Sprintf("\nTotal for %s since %s: %d tokens, $%.4f\n",
		shortKey(key), since.Format(time.DateOnly), tokens, cost)
}

// formatOverview renders a usage overview as text.
func formatOverview(days int, o *models.UsageOverview) string {
	if o.TotalRequests == 0 {
		return fmt.Sprintf("No requests in the last %d days.", days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Usage over the last %d days\n", days)
	fmt.Fprintf(&b, "  Requests:      %d\n", o.TotalRequests)
	fmt.Fprintf(&b, "  Tokens:        %d\n", o.TotalTokens)
	fmt.Fprintf(&b, "  Cost:          $%.4f\n", o.TotalCost)
	fmt.Fprintf(&b, "  Avg latency:   %.0f ms\n", o.AvgLatency)
	fmt.Fprintf(&b, "  Error rate:    %.1f%%\n", o.ErrorRate*100)
	fmt.Fprintf(&b, "  Fallback rate: %.1f%%\n", o.FallbackRate*100)

	b.WriteString("\nBy model\n")
	fmt.Fprintf(&b, "  %-28s %8s %8s %10s %10s\n", "Model", "Requests", "Errors", "Cost", "Latency")
	for _, name := range slices.Sorted(maps.Keys(o.ByModel)) {
		m := o.ByModel[name]
		fmt.Fprintf(&b, "  %-28s %8d %8d %10.4f %8.0fms\n", name, m.Requests, m.Errors, m.Cost, m.AvgLatency)
	}

	b.WriteString("\nBy task type\n")
	for _, name := range slices.Sorted(maps.Keys(o.ByTaskType)) {
		ts := o.ByTaskType[name]
		fmt.Fprintf(&b, "  %-28s %8d %10.4f %8.0fms\n", name, ts.Requests, ts.Cost, ts.AvgLatency)
	}

	b.WriteString("\nBy day\n")
	for _, day := range slices.Sorted(maps.Keys(o.ByDay)) {
		d := o.ByDay[day]
		fmt.Fprintf(&b, "  %-28s %8d %8d %10.4f\n", day, d.Requests, d.Errors, d.Cost)
	}
	return b.String()
}

func formatProjection(p *models.CostProjection) string {
	return fmt.Sprintf("Cost projection (from the last 7 days)\n"+
		"  Daily:   $%.4f\n"+
		"  Weekly:  $%.4f\n"+
		"  Monthly: $%.4f\n"+
		"  Yearly:  $%.4f\n",
		p.Daily, p.Weekly, p.Monthly, p.Yearly)
}

func shortKey(key string) string {
	if len(key) > 20 {
		return key[:8] + "..." + key[len(key)-8:]
	}
	return key
}
