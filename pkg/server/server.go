// Package server is the HTTP host for the engine: authentication, CORS, rate
// limiting, the /v1 routes, health and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/dashboard"
	"github.com/silentengine/silentengine/pkg/engine"
	"github.com/silentengine/silentengine/pkg/provider"
	"github.com/silentengine/silentengine/pkg/ratelimit"
	"github.com/silentengine/silentengine/pkg/tracker"
)

const (
	maxBodyBytes   = 1 << 20
	maxJSONRetries = 10
	corsMaxAge     = "86400"
)

// Deps are the collaborators a Server routes to. Tracker may be nil.
type Deps struct {
	Engine    *engine.Engine
	Dashboard *dashboard.Service
	Limiter   *ratelimit.Limiter
	Tracker   tracker.Tracker
	Providers provider.Registry
	Logger    *slog.Logger
	Now       func() time.Time
}

// Server is the engine's HTTP front end.
type Server struct {
	cfg       *config.Config
	engine    *engine.Engine
	dashboard *dashboard.Service
	limiter   *ratelimit.Limiter
	tracker   tracker.Tracker
	providers provider.Registry
	log       *slog.Logger
	now       func() time.Time
	origins   map[string]bool
	handler   http.Handler
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		cfg:       cfg,
		engine:    d.Engine,
		dashboard: d.Dashboard,
		limiter:   d.Limiter,
		tracker:   d.Tracker,
		providers: d.Providers,
		log:       d.Logger.With("component", "server"),
		now:       d.Now,
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}
	if cfg.Mode == config.ModeProduction && len(s.origins) == 0 {
		s.log.Warn("ALLOWED_ORIGINS not set in production, CORS is wide open")
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/generate", s.authenticate(s.rateLimit(http.HandlerFunc(s.handleGenerate))))
	mux.Handle("/v1/generate-json", s.authenticate(s.rateLimit(http.HandlerFunc(s.handleGenerateJSON))))
	mux.Handle("/v1/dashboard/overview", s.authenticate(http.HandlerFunc(s.handleOverview)))
	mux.Handle("/v1/dashboard/cost-projection", s.authenticate(http.HandlerFunc(s.handleCostProjection)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	s.handler = s.cors(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("silentengine listening", "addr", s.cfg.Listen, "mode", s.cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
