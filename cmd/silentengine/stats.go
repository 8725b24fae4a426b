package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/tracker"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		apiKey string
		since  string
		detail bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage and cost per caller key and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			sinceTime := beginningOfMonth(time.Now())
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				sinceTime = t
			}

			if detail {
				if apiKey == "" {
					return fmt.Errorf("--detail requires --api-key")
				}
				return printUsageDetail(cmd.Context(), cmd.OutOrStdout(), tr, apiKey, sinceTime, limit)
			}

			summaries, err := tr.Summary(cmd.Context(), apiKey, sinceTime)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "API KEY\tMODEL\tREQUESTS\tINPUT\tOUTPUT\tTOTAL\tCOST")
			var totalCost float64
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\n",
					s.APIKey, s.Model, s.RequestCount, s.TotalInput, s.TotalOutput, s.TotalTokens, s.TotalCost)
				totalCost += s.TotalCost
			}
			fmt.Fprintf(w, "\t\t\t\t\tTOTAL\t$%.4f\n", totalCost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "filter by caller key")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD, default: start of month)")
	cmd.Flags().BoolVar(&detail, "detail", false, "list individual requests for --api-key, newest first")
	cmd.Flags().IntVar(&limit, "limit", 50, "max requests to list with --detail (0 for all)")
	return cmd
}

// printUsageDetail lists one key's usage records followed by its totals.
func printUsageDetail(ctx context.Context, out io.Writer, tr tracker.Tracker, apiKey string, since time.Time, limit int) error {
	records, err := tr.QueryByKey(ctx, apiKey, since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No usage data found.")
		return nil
	}
	tokens, cost, err := tr.TotalByKey(ctx, apiKey, since)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTASK\tPROVIDER\tMODEL\tINPUT\tOUTPUT\tTOTAL\tCOST")
	for i, r := range records {
		if limit > 0 && i == limit {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.TaskType, r.Provider, r.Model,
			r.InputTokens, r.OutputTokens, r.TotalTokens, r.Cost)
	}
	fmt.Fprintf(w, "\t\t\t%d requests\t\t\t%d\t$%.4f\n", len(records), tokens, cost)
	return w.Flush()
}

func beginningOfMonth(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
