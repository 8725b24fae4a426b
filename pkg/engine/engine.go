// Package engine routes generation requests to providers, falls back to backups
// when a primary is unhealthy or fails, and records every outcome.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/silentengine/silentengine/pkg/metrics"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/provider"
	"github.com/silentengine/silentengine/pkg/router"
)

// DefaultMaxJSONRetries is the attempt budget of GenerateJSON when none is given.
const DefaultMaxJSONRetries = 3

// Recorder persists request outcomes. requestlog.Logger implements it.
type Recorder interface {
	Append(req models.GenerateRequest, resp models.GenerateResponse, errMsg string, fallbackUsed bool)
}

// Options configures an Engine.
type Options struct {
	Recorder       Recorder
	Alerter        Alerter
	MaxJSONRetries int
	Now            func() time.Time
	Logger         *slog.Logger
}

// Engine owns the provider registry and routing table.
type Engine struct {
	providers  provider.Registry
	router     *router.Router
	recorder   Recorder
	alerter    Alerter
	maxRetries int
	now        func() time.Time
	log        *slog.Logger
}

// New creates an Engine.
func New(providers provider.Registry, r *router.Router, opts Options) *Engine {
	if opts.Alerter == nil {
		opts.Alerter = nopAlerter{}
	}
	if opts.MaxJSONRetries <= 0 {
		opts.MaxJSONRetries = DefaultMaxJSONRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		providers:  providers,
		router:     r,
		recorder:   opts.Recorder,
		alerter:    opts.Alerter,
		maxRetries: opts.MaxJSONRetries,
		now:        opts.Now,
		log:        opts.Logger.With("component", "engine"),
	}
}

// Generate serves req from the primary provider of its task type's rule, or from
// the backup when the rule allows fallback and the primary is unhealthy or fails.
// When every permitted provider fails the outcome is logged and an
// *AggregateError is returned.
func (e *Engine) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	taskType := req.TaskType.OrDefault()
	rule := e.router.Resolve(taskType)
	e.log.Debug("routing request", "task_type", taskType, "primary", rule.PrimaryModel)

	primary, ok := e.providers.Get(rule.PrimaryModel)
	if !ok {
		return models.GenerateResponse{}, &ConfigurationError{ModelID: rule.PrimaryModel, Role: "primary"}
	}

	if !primary.CheckHealth(ctx) && rule.CanFallback() {
		e.log.Info("primary unhealthy, using backup preemptively", "primary", rule.PrimaryModel, "backup", rule.BackupModel)
		backup, ok := e.providers.Get(rule.BackupModel)
		if !ok {
			return models.GenerateResponse{}, &ConfigurationError{ModelID: rule.BackupModel, Role: "backup"}
		}
		resp, err := e.attempt(ctx, backup, req)
		if err != nil {
			return e.fail(taskType, req, rule, ErrUnhealthy, err, true)
		}
		e.record(req, resp, "", true)
		e.alert(ctx, taskType, rule, ReasonUnhealthy, nil)
		metrics.Requests.WithLabelValues(string(taskType), resp.Provider, "fallback").Inc()
		return resp, nil
	}

	resp, primaryErr := e.attempt(ctx, primary, req)
	if primaryErr == nil {
		e.record(req, resp, "", false)
		metrics.Requests.WithLabelValues(string(taskType), resp.Provider, "ok").Inc()
		return resp, nil
	}
	e.log.Warn("primary model failed", "primary", rule.PrimaryModel, "error", primaryErr)

	if !rule.CanFallback() {
		return e.fail(taskType, req, rule, primaryErr, nil, false)
	}

	e.log.Info("attempting fallback", "backup", rule.BackupModel)
	backup, ok := e.providers.Get(rule.BackupModel)
	if !ok {
		return e.fail(taskType, req, rule, primaryErr, &ConfigurationError{ModelID: rule.BackupModel, Role: "backup"}, false)
	}
	resp, backupErr := e.attempt(ctx, backup, req)
	if backupErr != nil {
		e.log.Warn("backup model also failed", "backup", rule.BackupModel, "error", backupErr)
		return e.fail(taskType, req, rule, primaryErr, backupErr, false)
	}

	e.record(req, resp, primaryErr.Error(), true)
	e.alert(ctx, taskType, rule, ReasonError, primaryErr)
	metrics.Requests.WithLabelValues(string(taskType), resp.Provider, "fallback").Inc()
	return resp, nil
}

// attempt runs one provider call and records its metrics.
func (e *Engine) attempt(ctx context.Context, p provider.Provider, req models.GenerateRequest) (models.GenerateResponse, error) {
	start := e.now()
	resp, err := p.Generate(ctx, req)
	metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(e.now().Sub(start).Seconds())
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
		return models.GenerateResponse{}, err
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), "ok").Inc()
	metrics.Tokens.WithLabelValues(p.Name(), "input").Add(float64(resp.Tokens.Input))
	metrics.Tokens.WithLabelValues(p.Name(), "output").Add(float64(resp.Tokens.Output))
	metrics.Cost.WithLabelValues(p.Name()).Add(resp.Cost)
	return resp, nil
}

// fail logs a zero-valued response carrying the combined error text and returns
// the aggregate error.
func (e *Engine) fail(taskType models.TaskType, req models.GenerateRequest, rule models.RoutingRule, primaryErr, backupErr error, fallbackUsed bool) (models.GenerateResponse, error) {
	agg := &AggregateError{
		TaskType:   taskType,
		Primary:    rule.PrimaryModel,
		Backup:     rule.BackupModel,
		PrimaryErr: primaryErr,
		BackupErr:  backupErr,
	}
	errResp := models.GenerateResponse{
		Model:     rule.PrimaryModel,
		Provider:  "none",
		RequestID: provider.NewRequestID(e.now()),
	}
	e.record(req, errResp, agg.combined(), fallbackUsed)
	metrics.Requests.WithLabelValues(string(taskType), "none", "error").Inc()
	return models.GenerateResponse{}, agg
}

func (e *Engine) record(req models.GenerateRequest, resp models.GenerateResponse, errMsg string, fallbackUsed bool) {
	if e.recorder == nil {
		return
	}
	e.recorder.Append(req, resp, errMsg, fallbackUsed)
}

func (e *Engine) alert(ctx context.Context, taskType models.TaskType, rule models.RoutingRule, reason string, err error) {
	metrics.Fallbacks.WithLabelValues(rule.PrimaryModel, rule.BackupModel, reason).Inc()
	e.alerter.Fallback(ctx, FallbackAlert{
		TaskType: taskType,
		Primary:  rule.PrimaryModel,
		Backup:   rule.BackupModel,
		Reason:   reason,
		Err:      err,
		At:       e.now(),
	})
}
