// Package privacy sanitizes prompt and response text before it is written to the
// request log.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

// ContentType says which side of an exchange is being sanitized.
type ContentType string

const (
	ContentPrompt   ContentType = "prompt"
	ContentResponse ContentType = "response"
)

const (
	truncateThreshold = 200
	truncateKeep      = 100
)

type piiPattern struct {
	placeholder string
	re          *regexp.Regexp
}

// Applied in order, each over the previous output, so overlapping matches can be
// redacted more than once.
var piiPatterns = []piiPattern{
	{"[REDACTED_EMAIL]", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	{"[REDACTED_PHONE]", regexp.MustCompile(`\b(\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{"[REDACTED_SSN]", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"[REDACTED_CREDITCARD]", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"[REDACTED_IPADDRESS]", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// Filter applies a PrivacyConfig. It has no mutable state and is safe for
// concurrent use.
type Filter struct {
	cfg        models.PrivacyConfig
	production bool
	now        func() time.Time
}

// New creates a Filter. Full-content logging is honoured only outside production.
func New(cfg models.PrivacyConfig, production bool) *Filter {
	return &Filter{cfg: cfg, production: production, now: time.Now}
}

// Config returns the filter's configuration.
func (f *Filter) Config() models.PrivacyConfig {
	return f.cfg
}

// Sanitize returns the loggable form of content. The first matching policy wins:
// full content, prompt hashing, PII redaction, then middle truncation.
func (f *Filter) Sanitize(content string, kind ContentType) string {
	if !f.production && f.cfg.LogFullContent {
		return content
	}
	if f.cfg.HashPrompts && kind == ContentPrompt {
		return HashContent(content)
	}
	if f.cfg.RedactPII {
		return RedactPII(content)
	}
	return Truncate(content)
}

// ShouldRetain reports whether a record created at t is still inside the retention window.
func (f *Filter) ShouldRetain(t time.Time) bool {
	retention := time.Duration(f.cfg.RetentionDays) * 24 * time.Hour
	return f.now().Sub(t) < retention
}

// HashContent returns "hash_" followed by the first 16 hex chars of the SHA-256 digest.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "hash_" + hex.EncodeToString(sum[:])[:16]
}

// RedactPII replaces every match of every PII category with its placeholder.
func RedactPII(content string) string {
	out := content
	for _, p := range piiPatterns {
		out = p.re.ReplaceAllLiteralString(out, p.placeholder)
	}
	return out
}

// Truncate keeps the first and last 100 characters of content longer than 200
// and replaces the middle with the elided count.
func Truncate(content string) string {
	r := []rune(content)
	if len(r) <= truncateThreshold {
		return content
	}
	return string(r[:truncateKeep]) +
		fmt.Sprintf("... [%d chars] ...", len(r)-truncateThreshold) +
		string(r[len(r)-truncateKeep:])
}
