package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

// Static answers every request locally with a placeholder. It stands in for a
// backend that has no credentials in development, and for upstreams in tests.
type Static struct {
	id      string
	backend string
	model   string
	now     func() time.Time
	health  *HealthTracker

	// Respond overrides the placeholder content. A non-nil error fails the call.
	Respond func(req models.GenerateRequest) (string, error)
}

// NewStatic returns a Static provider for id serving model.
func NewStatic(id, model string, opts Options) *Static {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	backend, _, _ := strings.Cut(id, ":")
	return &Static{
		id:      id,
		backend: backend,
		model:   model,
		now:     opts.Now,
		health:  NewHealthTracker(id, opts.HealthInterval, opts.Now, opts.Logger),
	}
}

// Name returns the provider id.
func (s *Static) Name() string { return s.id }

// Health exposes the provider's tracker.
func (s *Static) Health() *HealthTracker { return s.health }

// CheckHealth probes through Generate like any other backend.
func (s *Static) CheckHealth(ctx context.Context) bool {
	return s.health.Check(ctx, func(ctx context.Context) error {
		_, err := s.Generate(ctx, pingRequest())
		return err
	})
}

// Generate returns the placeholder (or Respond's) content with estimated token counts.
func (s *Static) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	start := s.now()
	if err := ctx.Err(); err != nil {
		return models.GenerateResponse{}, &Error{Provider: s.id, Model: s.model, Message: err.Error(), Err: err}
	}

	content := s.placeholder(req.Prompt)
	if s.Respond != nil {
		var err error
		content, err = s.Respond(req)
		if err != nil {
			return models.GenerateResponse{}, &Error{Provider: s.id, Model: s.model, Message: err.Error(), Err: err}
		}
	}

	end := s.now()
	return models.GenerateResponse{
		Content:   content,
		Model:     s.model,
		Provider:  s.backend,
		Tokens:    models.NewTokenUsage(estimateTokens(req.Prompt), estimateTokens(content)),
		Latency:   end.Sub(start).Milliseconds(),
		RequestID: NewRequestID(end),
	}, nil
}

func (s *Static) placeholder(prompt string) string {
	r := []rune(prompt)
	if len(r) > 40 {
		r = r[:40]
	}
	return fmt.Sprintf("[%s PLACEHOLDER RESPONSE for %s...]", strings.ToUpper(s.backend), string(r))
}

// estimateTokens approximates four characters per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
