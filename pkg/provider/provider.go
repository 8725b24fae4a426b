// Package provider adapts LLM backends to a single generation interface.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/silentengine/silentengine/pkg/models"
)

// Provider executes one generation call against one backend.
// Implementations must return backend failures as errors, never as empty responses.
type Provider interface {
	// Name returns the provider id, e.g. "groq:llama-3.1-70b".
	Name() string
	Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error)
	// CheckHealth reports the cached health verdict, probing when it has expired.
	CheckHealth(ctx context.Context) bool
}

// Error is a failed call to a single backend.
type Error struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewRequestID returns an opaque id of the form req_<unix millis>_<random>.
func NewRequestID(now time.Time) string {
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// Registry maps provider ids to providers.
type Registry map[string]Provider

// NewRegistry indexes providers by Name.
func NewRegistry(ps ...Provider) Registry {
	r := make(Registry, len(ps))
	for _, p := range ps {
		r[p.Name()] = p
	}
	return r
}

// Get looks up a provider by id.
func (r Registry) Get(id string) (Provider, bool) {
	p, ok := r[id]
	return p, ok
}

// IDs returns the registered ids in sorted order.
func (r Registry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pingRequest is the minimal generation used as a health probe.
func pingRequest() models.GenerateRequest {
	one := 1
	return models.GenerateRequest{Prompt: "ping", MaxTokens: &one}
}
