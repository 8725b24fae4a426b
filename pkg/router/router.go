package router

import (
	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/models"
)

// Router resolves task types to routing rules.
type Router struct {
	rules        map[models.TaskType]models.RoutingRule
	defaultModel string
}

// New creates a Router from the given routing configuration. Later rules for the
// same task type replace earlier ones.
func New(cfg config.RoutingConfig) *Router {
	r := &Router{
		rules:        make(map[models.TaskType]models.RoutingRule, len(cfg.Rules)),
		defaultModel: cfg.Default,
	}
	for _, rule := range cfg.Rules {
		r.rules[rule.TaskType] = rule
	}
	return r
}

// Resolve returns the rule for taskType. An empty task type is treated as
// "general"; a task type with no rule gets the default model with the single
// strategy, so every request has a usable rule.
func (r *Router) Resolve(taskType models.TaskType) models.RoutingRule {
	taskType = taskType.OrDefault()
	if rule, ok := r.rules[taskType]; ok {
		return rule
	}
	return models.RoutingRule{
		TaskType:     taskType,
		PrimaryModel: r.defaultModel,
		Strategy:     models.StrategySingle,
	}
}

// Rules returns a copy of the configured rules.
func (r *Router) Rules() map[models.TaskType]models.RoutingRule {
	out := make(map[models.TaskType]models.RoutingRule, len(r.rules))
	for k, v := range r.rules {
		out[k] = v
	}
	return out
}
