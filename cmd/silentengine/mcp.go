package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/dashboard"
	"github.com/silentengine/silentengine/pkg/mcp"
	"github.com/silentengine/silentengine/pkg/tracker"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage analytics to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			log := newLogger(cfg)

			logs, err := openLogs(cfg)
			if err != nil {
				return err
			}

			var tr tracker.Tracker
			st, err := tracker.New(cfg.DBPath)
			if err != nil {
				log.Warn("usage tracker unavailable", "error", err)
			} else {
				defer func() { _ = st.Close() }()
				tr = st
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcp.New(dashboard.New(logs, nil), tr, version, log)
			if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		},
	}
}
