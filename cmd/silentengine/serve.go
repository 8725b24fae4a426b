package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/dashboard"
	"github.com/silentengine/silentengine/pkg/engine"
	"github.com/silentengine/silentengine/pkg/privacy"
	"github.com/silentengine/silentengine/pkg/provider"
	"github.com/silentengine/silentengine/pkg/ratelimit"
	"github.com/silentengine/silentengine/pkg/requestlog"
	"github.com/silentengine/silentengine/pkg/router"
	"github.com/silentengine/silentengine/pkg/server"
	"github.com/silentengine/silentengine/pkg/tracker"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noTracker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			production := cfg.Mode == config.ModeProduction
			providers, err := provider.FromConfig(cfg.Providers, cfg.Pricing, provider.BuildOptions{
				HealthInterval:   cfg.Health.Interval,
				Logger:           log,
				StaticWithoutKey: !production,
			})
			if err != nil {
				return fmt.Errorf("build providers: %w", err)
			}

			filter := privacy.New(cfg.PrivacyConfig(), production)
			logs, err := requestlog.New(requestlog.Options{
				Dir:         cfg.Logs.Dir,
				MaxInMemory: cfg.Logs.MaxInMemory,
				Filter:      filter,
				Logger:      log,
			})
			if err != nil {
				return fmt.Errorf("init request log: %w", err)
			}
			defer func() {
				if err := logs.Close(); err != nil {
					log.Error("final log flush failed", "error", err)
				}
			}()

			limiter := ratelimit.New(cfg.RateLimits.Default, ratelimit.WithLogger(log))
			for key, lc := range cfg.RateLimits.Keys {
				limiter.SetLimit(key, lc)
			}

			var tr tracker.Tracker
			if !noTracker {
				st, err := tracker.New(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("init tracker: %w", err)
				}
				defer func() { _ = st.Close() }()
				tr = st
			}

			eng := engine.New(providers, router.New(cfg.Routing), engine.Options{
				Recorder:       logs,
				Alerter:        engine.LogAlerter{Log: log},
				MaxJSONRetries: cfg.JSONMode.MaxRetries,
				Logger:         log,
			})

			srv := server.New(cfg, server.Deps{
				Engine:    eng,
				Dashboard: dashboard.New(logs, nil),
				Limiter:   limiter,
				Tracker:   tr,
				Providers: providers,
				Logger:    log,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go limiter.Run(ctx, cfg.RateLimits.SweepInterval)
			go requestlog.NewScheduler(logs, cfg.Logs.ArchiveHour, cfg.Logs.ArchiveAfterDays).Run(ctx)

			log.Info("engine ready", "providers", providers.IDs(), "log_dir", logs.Dir(), "config", *configPath)
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			log.Info("shutting down, flushing request logs")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noTracker, "no-tracker", false, "disable the SQLite usage tracker")
	return cmd
}
