package models

// Strategy decides whether a routing rule may fall back to its backup provider.
type Strategy string

const (
	StrategySingle   Strategy = "single"
	StrategyFallback Strategy = "fallback"
)

// RoutingRule maps a task type to a primary provider and an optional backup.
type RoutingRule struct {
	TaskType     TaskType `json:"taskType" yaml:"task_type"`
	PrimaryModel string   `json:"primaryModel" yaml:"primary"`
	BackupModel  string   `json:"backupModel,omitempty" yaml:"backup,omitempty"`
	Strategy     Strategy `json:"strategy" yaml:"strategy"`
}

// CanFallback reports whether the rule allows trying the backup provider.
// A single-strategy rule never falls back, even if a backup is named.
func (r RoutingRule) CanFallback() bool {
	return r.Strategy == StrategyFallback && r.BackupModel != ""
}
