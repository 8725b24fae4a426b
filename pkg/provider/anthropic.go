package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/models"
)

const (
	AnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	// Anthropic requires max_tokens on every request.
	anthropicDefaultMaxTokens = 1024
)

type anthropicDialect struct{}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropic returns a provider for the Anthropic Messages API.
func NewAnthropic(opts Options) *HTTPProvider {
	return newHTTPProvider(anthropicDialect{}, opts)
}

func (anthropicDialect) defaultBaseURL() string { return AnthropicBaseURL }

func (anthropicDialect) buildRequest(ctx context.Context, baseURL, apiKey, model string, req models.GenerateRequest) (*http.Request, error) {
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	payload := anthropicRequest{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	httpReq, err := newJSONRequest(ctx, baseURL+"/v1/messages", payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

func (anthropicDialect) parseResponse(body []byte) (completion, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return completion{}, fmt.Errorf("decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return completion{
		Text:   text.String(),
		Model:  resp.Model,
		Input:  resp.Usage.InputTokens,
		Output: resp.Usage.OutputTokens,
	}, nil
}
