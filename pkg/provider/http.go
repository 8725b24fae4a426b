package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/models"
)

const (
	defaultTimeout   = 60 * time.Second
	maxErrorBodySize = 512
)

// Options configures an HTTP-backed provider.
type Options struct {
	ID             string // provider id, "<backend>:<alias>"
	Model          string // upstream model name
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	Client         *http.Client
	Pricing        models.ModelPricing
	HealthInterval time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// completion is what a dialect extracts from an upstream response body.
type completion struct {
	Text   string
	Model  string
	Input  int
	Output int
}

// dialect translates between GenerateRequest and one upstream wire format.
type dialect interface {
	defaultBaseURL() string
	buildRequest(ctx context.Context, baseURL, apiKey, model string, req models.GenerateRequest) (*http.Request, error)
	parseResponse(body []byte) (completion, error)
}

// HTTPProvider calls a remote model API through a dialect.
type HTTPProvider struct {
	id      string
	backend string
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
	dialect dialect
	pricing models.ModelPricing
	now     func() time.Time
	health  *HealthTracker
}

func newHTTPProvider(d dialect, opts Options) *HTTPProvider {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = d.defaultBaseURL()
	}
	backend, _, _ := strings.Cut(opts.ID, ":")
	return &HTTPProvider{
		id:      opts.ID,
		backend: backend,
		model:   opts.Model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  opts.APIKey,
		client:  client,
		dialect: d,
		pricing: opts.Pricing,
		now:     opts.Now,
		health:  NewHealthTracker(opts.ID, opts.HealthInterval, opts.Now, opts.Logger),
	}
}

// Name returns the provider id.
func (p *HTTPProvider) Name() string { return p.id }

// Health exposes the provider's tracker.
func (p *HTTPProvider) Health() *HealthTracker { return p.health }

// CheckHealth probes with a one-token generation when the cached verdict has expired.
func (p *HTTPProvider) CheckHealth(ctx context.Context) bool {
	return p.health.Check(ctx, func(ctx context.Context) error {
		_, err := p.Generate(ctx, pingRequest())
		return err
	})
}

// Generate sends req upstream and converts the reply.
func (p *HTTPProvider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	start := p.now()

	httpReq, err := p.dialect.buildRequest(ctx, p.baseURL, p.apiKey, p.model, req)
	if err != nil {
		return models.GenerateResponse{}, p.fail(0, err.Error(), err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.GenerateResponse{}, p.fail(0, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.GenerateResponse{}, p.fail(0, "read response: "+err.Error(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.GenerateResponse{}, p.fail(resp.StatusCode, upstreamMessage(body), nil)
	}

	c, err := p.dialect.parseResponse(body)
	if err != nil {
		return models.GenerateResponse{}, p.fail(resp.StatusCode, err.Error(), err)
	}

	model := c.Model
	if model == "" {
		model = p.model
	}
	end := p.now()
	return models.GenerateResponse{
		Content:   c.Text,
		Model:     model,
		Provider:  p.backend,
		Tokens:    models.NewTokenUsage(c.Input, c.Output),
		Latency:   end.Sub(start).Milliseconds(),
		Cost:      p.pricing.Cost(c.Input, c.Output),
		RequestID: NewRequestID(end),
	}, nil
}

func (p *HTTPProvider) fail(status int, msg string, err error) *Error {
	return &Error{Provider: p.id, Model: p.model, StatusCode: status, Message: msg, Err: err}
}

// upstreamMessage pulls a human-readable message out of an error body, falling
// back to the (truncated) raw body.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodySize {
		s = s[:maxErrorBodySize]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}

func newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
