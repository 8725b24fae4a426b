package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

// Fallback reasons.
const (
	ReasonError     = "error"
	ReasonUnhealthy = "unhealthy"
)

// FallbackAlert describes one switch from a primary to its backup.
type FallbackAlert struct {
	TaskType models.TaskType
	Primary  string
	Backup   string
	Reason   string
	Err      error
	At       time.Time
}

// Alerter is notified whenever a backup serves a request.
type Alerter interface {
	Fallback(ctx context.Context, alert FallbackAlert)
}

// LogAlerter writes fallback alerts as warnings.
type LogAlerter struct {
	Log *slog.Logger
}

func (a LogAlerter) Fallback(_ context.Context, alert FallbackAlert) {
	log := a.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"task_type", alert.TaskType,
		"primary", alert.Primary,
		"backup", alert.Backup,
		"reason", alert.Reason,
		"timestamp", alert.At.UTC().Format(time.RFC3339),
	}
	if alert.Err != nil {
		attrs = append(attrs, "error", alert.Err.Error())
	}
	log.Warn("fallback triggered", attrs...)
}

type nopAlerter struct{}

func (nopAlerter) Fallback(context.Context, FallbackAlert) {}
