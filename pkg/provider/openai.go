package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/models"
)

// Base URLs of the OpenAI-compatible chat completion APIs.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIDialect struct {
	baseURL string
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAI returns a provider for OpenAI-compatible chat completion APIs.
// Groq and OpenRouter use it with their own base URLs.
func NewOpenAI(opts Options) *HTTPProvider {
	return newHTTPProvider(openAIDialect{baseURL: OpenAIBaseURL}, opts)
}

// NewGroq returns an OpenAI-compatible provider pointed at Groq.
func NewGroq(opts Options) *HTTPProvider {
	return newHTTPProvider(openAIDialect{baseURL: GroqBaseURL}, opts)
}

// NewOpenRouter returns an OpenAI-compatible provider pointed at OpenRouter.
func NewOpenRouter(opts Options) *HTTPProvider {
	return newHTTPProvider(openAIDialect{baseURL: OpenRouterBaseURL}, opts)
}

func (d openAIDialect) defaultBaseURL() string { return d.baseURL }

func (openAIDialect) buildRequest(ctx context.Context, baseURL, apiKey, model string, req models.GenerateRequest) (*http.Request, error) {
	payload := openAIRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	httpReq, err := newJSONRequest(ctx, baseURL+"/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return httpReq, nil
}

func (openAIDialect) parseResponse(body []byte) (completion, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return completion{}, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return completion{}, errors.New("response has no choices")
	}
	c := completion{Text: resp.Choices[0].Message.Content, Model: resp.Model}
	if resp.Usage != nil {
		c.Input = resp.Usage.PromptTokens
		c.Output = resp.Usage.CompletionTokens
	}
	return c, nil
}
