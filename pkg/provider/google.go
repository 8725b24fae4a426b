package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/models"
)

const (
	GoogleBaseURL    = "https://generativelanguage.googleapis.com"
	googleAPIVersion = "v1beta"
)

type googleDialect struct{}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// NewGoogle returns a provider for the Gemini generateContent API.
func NewGoogle(opts Options) *HTTPProvider {
	return newHTTPProvider(googleDialect{}, opts)
}

func (googleDialect) defaultBaseURL() string { return GoogleBaseURL }

func (googleDialect) buildRequest(ctx context.Context, baseURL, apiKey, model string, req models.GenerateRequest) (*http.Request, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.MaxTokens != nil || req.Temperature != nil {
		payload.GenerationConfig = &generationConfig{Temperature: req.Temperature}
		if req.MaxTokens != nil {
			payload.GenerationConfig.MaxOutputTokens = *req.MaxTokens
		}
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + googleAPIVersion + "/models/" + url.PathEscape(model) + ":generateContent"
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	return newJSONRequest(ctx, u.String(), payload)
}

func (googleDialect) parseResponse(body []byte) (completion, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return completion{}, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return completion{}, errors.New("response has no candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	c := completion{Text: text.String(), Model: resp.ModelVersion}
	if resp.UsageMetadata != nil {
		c.Input = resp.UsageMetadata.PromptTokenCount
		c.Output = resp.UsageMetadata.CandidatesTokenCount
	}
	return c, nil
}
