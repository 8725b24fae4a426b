package models

import "time"

// RequestLog is one persisted request/response record. Request and Response hold
// sanitized copies, never the raw prompt.
type RequestLog struct {
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Request      GenerateRequest  `json:"request"`
	Response     GenerateResponse `json:"response"`
	Error        string           `json:"error,omitempty"`
	FallbackUsed bool             `json:"fallbackUsed"`
}

// Day returns the UTC calendar day (YYYY-MM-DD) the record belongs to.
func (l RequestLog) Day() string {
	return l.Timestamp.UTC().Format(time.DateOnly)
}

// PrivacyConfig controls how prompts and responses are sanitized before they are logged.
type PrivacyConfig struct {
	LogFullContent bool `json:"log_full_content" yaml:"log_full_content"`
	RedactPII      bool `json:"redact_pii" yaml:"redact_pii"`
	HashPrompts    bool `json:"hash_prompts" yaml:"hash_prompts"`
	RetentionDays  int  `json:"retention_days" yaml:"retention_days"`
}
