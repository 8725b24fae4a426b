package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/privacy"
)

func newLogsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query and archive the request log",
	}
	cmd.AddCommand(
		newLogsSearchCmd(configPath),
		newLogsShowCmd(configPath),
		newLogsArchiveCmd(configPath),
	)
	return cmd
}

type logFilter struct {
	model        string
	taskType     string
	errorsOnly   bool
	fallbackOnly bool
}

func (f logFilter) match(l models.RequestLog) bool {
	if f.model != "" && l.Response.Model != f.model {
		return false
	}
	if f.taskType != "" && string(l.Request.TaskType.OrDefault()) != f.taskType {
		return false
	}
	if f.errorsOnly && l.Error == "" {
		return false
	}
	if f.fallbackOnly && !l.FallbackUsed {
		return false
	}
	return true
}

func newLogsSearchCmd(configPath *string) *cobra.Command {
	var (
		days   int
		limit  int
		all    bool
		filter logFilter
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List request log entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}

			now := time.Now()
			recs, err := logs.QueryRange(cmd.Context(), now.AddDate(0, 0, -days), now)
			if err != nil {
				return err
			}
			retention := privacy.New(cfg.PrivacyConfig(), cfg.Mode == config.ModeProduction)

			var out []models.RequestLog
			for i := len(recs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
				r := recs[i]
				if !all && !retention.ShouldRetain(r.Timestamp) {
					continue
				}
				if filter.match(r) {
					out = append(out, r)
				}
			}
			return printLogs(out)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "how many days back to search")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to print (0 for all)")
	cmd.Flags().BoolVar(&all, "all", false, "include entries past the retention window")
	cmd.Flags().StringVar(&filter.model, "model", "", "filter by model")
	cmd.Flags().StringVar(&filter.taskType, "task-type", "", "filter by task type")
	cmd.Flags().BoolVar(&filter.errorsOnly, "errors", false, "only failed requests")
	cmd.Flags().BoolVar(&filter.fallbackOnly, "fallback", false, "only requests served by a backup")
	return cmd
}

func newLogsShowCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "show REQUEST_ID",
		Short: "Show one request log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}

			now := time.Now()
			recs, err := logs.QueryRange(cmd.Context(), now.AddDate(0, 0, -days), now)
			if err != nil {
				return err
			}
			for _, r := range recs {
				if r.ID == args[0] {
					printLog(r)
					return nil
				}
			}
			return fmt.Errorf("no entry %s in the last %d days", args[0], days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "how many days back to search")
	return cmd
}

func newLogsArchiveCmd(configPath *string) *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move old day partitions into the archive directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.Logs.ArchiveAfterDays
			}

			n, err := logs.Archive(olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Archived %d partitions older than %d days.\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 30, "archive partitions last modified more than N days ago (default: logs.archive_after_days)")
	return cmd
}

func printLogs(recs []models.RequestLog) error {
	if len(recs) == 0 {
		fmt.Println("No request log entries found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST ID\tTIME\tTASK\tMODEL\tTOKENS\tLATENCY\tFALLBACK\tERROR")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\t%t\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Request.TaskType.OrDefault(),
			r.Response.Model, r.Response.Tokens.Total, r.Response.Latency, r.FallbackUsed, oneLine(r.Error, 60))
	}
	return w.Flush()
}

func printLog(r models.RequestLog) {
	fmt.Printf("Request ID:  %s\n", r.ID)
	fmt.Printf("Time:        %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Printf("Task type:   %s\n", r.Request.TaskType.OrDefault())
	fmt.Printf("Provider:    %s\n", r.Response.Provider)
	fmt.Printf("Model:       %s\n", r.Response.Model)
	fmt.Printf("Tokens:      %d input / %d output / %d total\n",
		r.Response.Tokens.Input, r.Response.Tokens.Output, r.Response.Tokens.Total)
	fmt.Printf("Latency:     %dms\n", r.Response.Latency)
	fmt.Printf("Cost:        $%.6f\n", r.Response.Cost)
	fmt.Printf("Fallback:    %t\n", r.FallbackUsed)
	if r.Error != "" {
		fmt.Printf("Error:       %s\n", r.Error)
	}
	fmt.Printf("\n--- Prompt ---\n%s\n", r.Request.Prompt)
	if r.Response.Content != "" {
		fmt.Printf("\n--- Response ---\n%s\n", r.Response.Content)
	}
}

func oneLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
