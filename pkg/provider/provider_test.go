package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/models"
)

func intPtr(n int) *int { return &n }

func TestOpenAIGenerate(t *testing.T) {
	var got openAIRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama-3.1-70b","choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":1000,"completion_tokens":500}}`))
	}))
	defer upstream.Close()

	p := NewGroq(Options{
		ID:      "groq:llama-3.1-70b",
		Model:   "llama-3.1-70b",
		BaseURL: upstream.URL,
		APIKey:  "sk-test",
		Pricing: models.ModelPricing{InputCost: 0.001, OutputCost: 0.002},
	})
	resp, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "hi", MaxTokens: intPtr(50)})
	require.NoError(t, err)

	assert.Equal(t, "llama-3.1-70b", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, 50, *got.MaxTokens)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, models.NewTokenUsage(1000, 500), resp.Tokens)
	assert.InDelta(t, 0.002, resp.Cost, 1e-9)
	assert.True(t, strings.HasPrefix(resp.RequestID, "req_"))
	assert.GreaterOrEqual(t, resp.Latency, int64(0))
}

func TestAnthropicGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var req anthropicRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, anthropicDefaultMaxTokens, req.MaxTokens)
		w.Write([]byte(`{"model":"claude-3-haiku-20240307","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer upstream.Close()

	p := NewAnthropic(Options{ID: "anthropic:claude-haiku-4", Model: "claude-3-haiku-20240307", BaseURL: upstream.URL, APIKey: "sk-ant"})
	resp, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 5, resp.Tokens.Total)
}

func TestGoogleGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"gem"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":6}}`))
	}))
	defer upstream.Close()

	p := NewGoogle(Options{ID: "google:gemini-1.5-flash", Model: "gemini-1.5-flash", BaseURL: upstream.URL, APIKey: "g-key"})
	resp, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gem", resp.Content)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	assert.Equal(t, 10, resp.Tokens.Total)
}

func TestUpstreamErrorIsReturned(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer upstream.Close()

	p := NewOpenAI(Options{ID: "openai:gpt-4o", Model: "gpt-4o", BaseURL: upstream.URL})
	_, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, "openai:gpt-4o", perr.Provider)
	assert.Equal(t, "overloaded", perr.Message)
}

func TestCheckHealthProbesWithPing(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req openAIRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "ping", req.Messages[0].Content)
		assert.Equal(t, 1, *req.MaxTokens)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	clock := newClock()
	p := NewOpenAI(Options{ID: "openai:gpt-4o", Model: "gpt-4o", BaseURL: upstream.URL, Now: clock.Now, HealthInterval: time.Minute})

	assert.False(t, p.CheckHealth(context.Background()))
	assert.False(t, p.CheckHealth(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestStatic(t *testing.T) {
	s := NewStatic("groq:llama-3.1-70b", "llama-3.1-70b", Options{})
	resp, err := s.Generate(context.Background(), models.GenerateRequest{Prompt: "explain goroutines"})
	require.NoError(t, err)
	assert.Equal(t, "[GROQ PLACEHOLDER RESPONSE for explain goroutines...]", resp.Content)
	assert.Equal(t, "groq", resp.Provider)

	s.Respond = func(models.GenerateRequest) (string, error) { return "", errors.New("boom") }
	_, err = s.Generate(context.Background(), models.GenerateRequest{Prompt: "x"})
	assert.EqualError(t, err, "boom")
	assert.False(t, s.CheckHealth(context.Background()))
}

func TestFromConfig(t *testing.T) {
	cfgs := []config.ProviderConfig{
		{ID: "openai:gpt-4o", Type: "openai", Model: "gpt-4o", APIKey: "sk"},
		{ID: "groq:llama-3.1-70b", Type: "groq", Model: "llama-3.1-70b"},
		{ID: "local:echo", Type: "static", Model: "echo"},
	}
	reg, err := FromConfig(cfgs, nil, BuildOptions{StaticWithoutKey: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"groq:llama-3.1-70b", "local:echo", "openai:gpt-4o"}, reg.IDs())
	assert.IsType(t, &HTTPProvider{}, reg["openai:gpt-4o"])
	assert.IsType(t, &Static{}, reg["groq:llama-3.1-70b"])
	assert.Equal(t, DefaultPricing["gpt-4o"], reg["openai:gpt-4o"].(*HTTPProvider).pricing)

	_, err = FromConfig([]config.ProviderConfig{{ID: "x:y", Type: "carrier-pigeon"}}, nil, BuildOptions{})
	assert.ErrorContains(t, err, "unknown type")
}

func TestNewRequestIDUnique(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a, b := NewRequestID(now), NewRequestID(now)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "req_1773144000000_"))
}
