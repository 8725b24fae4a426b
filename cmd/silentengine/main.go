package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/config"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "silentengine",
		Short:         "SilentEngine: task-aware routing across LLM providers with fallback, rate limits and usage analytics",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "silentengine.yaml", "path to config file (optional)")

	root.AddCommand(
		newServeCmd(&configPath),
		newOverviewCmd(&configPath),
		newCostCmd(&configPath),
		newLogsCmd(&configPath),
		newStatsCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file if present and applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger: JSON in production, text elsewhere.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Mode == config.ModeProduction {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h).With("service", "silentengine")
}
