package models

import (
	"maps"

	"github.com/goccy/go-json"
)

// TaskType labels the kind of work a request asks for; routing is keyed on it.
type TaskType string

const (
	TaskGeneral     TaskType = "general"
	TaskCode        TaskType = "code"
	TaskAnalysis    TaskType = "analysis"
	TaskJSON        TaskType = "json"
	TaskCreative    TaskType = "creative"
	TaskExplanation TaskType = "explanation"
	TaskChat        TaskType = "chat"
)

// OrDefault returns the task type, or TaskGeneral when it is empty.
func (t TaskType) OrDefault() TaskType {
	if t == "" {
		return TaskGeneral
	}
	return t
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskGeneral, TaskCode, TaskAnalysis, TaskJSON, TaskCreative, TaskExplanation, TaskChat:
		return true
	}
	return false
}

// GenerateRequest is the input to a single generation attempt.
// Unknown JSON fields are kept in Extra and written back out unchanged.
type GenerateRequest struct {
	Prompt      string         `json:"prompt"`
	TaskType    TaskType       `json:"taskType,omitempty"`
	MaxTokens   *int           `json:"maxTokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Extra       map[string]any `json:"-"`
}

var knownRequestFields = map[string]bool{
	"prompt": true, "taskType": true, "maxTokens": true, "temperature": true,
}

// Clone returns a copy that can be modified without touching r.
func (r GenerateRequest) Clone() GenerateRequest {
	out := r
	if r.MaxTokens != nil {
		v := *r.MaxTokens
		out.MaxTokens = &v
	}
	if r.Temperature != nil {
		v := *r.Temperature
		out.Temperature = &v
	}
	if r.Extra != nil {
		out.Extra = maps.Clone(r.Extra)
	}
	return out
}

// MarshalJSON flattens Extra next to the known fields.
func (r GenerateRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		if !knownRequestFields[k] {
			m[k] = v
		}
	}
	m["prompt"] = r.Prompt
	if r.TaskType != "" {
		m["taskType"] = r.TaskType
	}
	if r.MaxTokens != nil {
		m["maxTokens"] = *r.MaxTokens
	}
	if r.Temperature != nil {
		m["temperature"] = *r.Temperature
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the known fields and collects the rest into Extra.
func (r *GenerateRequest) UnmarshalJSON(data []byte) error {
	type plain GenerateRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownRequestFields {
		delete(raw, k)
	}
	*r = GenerateRequest(p)
	r.Extra = nil
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// TokenUsage holds token counts for one generation. Total is Input+Output by convention.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NewTokenUsage builds a TokenUsage with Total filled in.
func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{Input: input, Output: output, Total: input + output}
}

// GenerateResponse is the result of one generation attempt. It is not modified after
// construction.
type GenerateResponse struct {
	Content   string     `json:"content"`
	Model     string     `json:"model"`
	Provider  string     `json:"provider"`
	Tokens    TokenUsage `json:"tokens"`
	Latency   int64      `json:"latency"` // milliseconds
	Cost      float64    `json:"cost"`
	RequestID string     `json:"requestId"`
}
