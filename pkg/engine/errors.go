package engine

import (
	"errors"
	"fmt"

	"github.com/silentengine/silentengine/pkg/models"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnhealthy stands in for the primary's error when it was skipped because
	// its cached health verdict was bad.
	ErrUnhealthy = errors.New("provider unhealthy")
)

// ConfigurationError reports a routing rule that names an unregistered provider.
// It is not retried.
type ConfigurationError struct {
	ModelID string
	Role    string // "primary" or "backup"
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s model %s not found", e.Role, e.ModelID)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AggregateError reports that the primary and, when the rule allows it, the backup
// both failed.
type AggregateError struct {
	TaskType   models.TaskType
	Primary    string
	Backup     string
	PrimaryErr error
	BackupErr  error
}

func (e *AggregateError) Error() string {
	msg := fmt.Sprintf("all models failed for taskType=%s. Primary (%s): %v", e.TaskType, e.Primary, e.PrimaryErr)
	if e.BackupErr != nil {
		msg += fmt.Sprintf(". Backup (%s): %v", e.Backup, e.BackupErr)
	}
	return msg
}

func (e *AggregateError) Unwrap() []error {
	var errs []error
	if e.PrimaryErr != nil {
		errs = append(errs, e.PrimaryErr)
	}
	if e.BackupErr != nil {
		errs = append(errs, e.BackupErr)
	}
	return errs
}

// combined is the error text stored in the request log for a total failure.
func (e *AggregateError) combined() string {
	if e.BackupErr != nil {
		return fmt.Sprintf("Primary: %v, Backup: %v", e.PrimaryErr, e.BackupErr)
	}
	if e.PrimaryErr != nil {
		return e.PrimaryErr.Error()
	}
	return "unknown error"
}

// ValidationError reports that no attempt produced parseable JSON.
type ValidationError struct {
	Attempts int
	LastErr  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("failed to generate valid JSON after %d attempts. Last error: %v", e.Attempts, e.LastErr)
}

func (e *ValidationError) Unwrap() error { return e.LastErr }
