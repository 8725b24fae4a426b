package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/dashboard"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/requestlog"
)

// openLogs opens the request log for reading. The logger is never closed so a
// CLI invocation cannot rewrite a partition a running server is appending to.
func openLogs(cfg *config.Config) (*requestlog.Logger, error) {
	l, err := requestlog.New(requestlog.Options{
		Dir:         cfg.Logs.Dir,
		MaxInMemory: cfg.Logs.MaxInMemory,
		Logger:      newLogger(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("open request log: %w", err)
	}
	return l, nil
}

func newOverviewCmd(configPath *string) *cobra.Command {
	var (
		days   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Summarize requests, cost and latency from the request log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = dashboard.DefaultDays
			}

			o, err := dashboard.New(logs, nil).UsageOverview(cmd.Context(), days)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(o)
			}
			return printOverview(days, o)
		},
	}

	cmd.Flags().IntVar(&days, "days", dashboard.DefaultDays, "number of days to include")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw overview as JSON")
	return cmd
}

func newCostCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Project spend from the last 7 days of requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}

			p, err := dashboard.New(logs, nil).CostProjection(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(p)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIOD\tPROJECTED COST")
			fmt.Fprintf(w, "daily\t$%.4f\n", p.Daily)
			fmt.Fprintf(w, "weekly\t$%.4f\n", p.Weekly)
			fmt.Fprintf(w, "monthly\t$%.4f\n", p.Monthly)
			fmt.Fprintf(w, "yearly\t$%.4f\n", p.Yearly)
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the projection as JSON")
	return cmd
}

func printOverview(days int, o *models.UsageOverview) error {
	if o.TotalRequests == 0 {
		fmt.Printf("No requests in the last %d days.\n", days)
		return nil
	}
	fmt.Printf("Last %d days: %d requests, %d tokens, $%.4f, avg %.0fms, errors %.1f%%, fallbacks %.1f%%\n\n",
		days, o.TotalRequests, o.TotalTokens, o.TotalCost, o.AvgLatency, o.ErrorRate*100, o.FallbackRate*100)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tREQUESTS\tERRORS\tTOKENS\tCOST\tAVG LATENCY")
	for _, name := range slices.Sorted(maps.Keys(o.ByModel)) {
		m := o.ByModel[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\t%.0fms\n", name, m.Requests, m.Errors, m.Tokens, m.Cost, m.AvgLatency)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TASK TYPE\tREQUESTS\tCOST\tAVG LATENCY")
	for _, name := range slices.Sorted(maps.Keys(o.ByTaskType)) {
		ts := o.ByTaskType[name]
		fmt.Fprintf(w, "%s\t%d\t$%.4f\t%.0fms\n", name, ts.Requests, ts.Cost, ts.AvgLatency)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DAY\tREQUESTS\tERRORS\tCOST")
	for _, day := range slices.Sorted(maps.Keys(o.ByDay)) {
		d := o.ByDay[day]
		fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\n", day, d.Requests, d.Errors, d.Cost)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
