package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/metrics"
	"github.com/silentengine/silentengine/pkg/models"
)

var (
	jsonFence  = regexp.MustCompile("```json\\n?")
	plainFence = regexp.MustCompile("```\\n?")
)

// JSONResult is the parsed output of GenerateJSON. Responses holds every
// successful generation it made, including those whose content did not parse,
// so callers can account for their usage.
type JSONResult struct {
	Data        json.RawMessage           `json:"data"`
	RetriesUsed int                       `json:"retriesUsed"`
	Responses   []models.GenerateResponse `json:"-"`
}

// GenerateJSON runs Generate with the json task type until the content parses as
// JSON, at most maxRetries times (the engine default when maxRetries <= 0). After
// each failed parse the parser error and a JSON-only instruction are appended to
// the prompt of a private copy of req. Errors from Generate end the loop at once.
// The returned JSONResult carries Responses even when err is non-nil.
func (e *Engine) GenerateJSON(ctx context.Context, req models.GenerateRequest, maxRetries int) (JSONResult, error) {
	if maxRetries <= 0 {
		maxRetries = e.maxRetries
	}
	local := req.Clone()
	local.TaskType = models.TaskJSON

	var res JSONResult
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := e.Generate(ctx, local)
		if err != nil {
			return res, err
		}
		res.Responses = append(res.Responses, resp)

		content := StripCodeFences(resp.Content)
		var v any
		if lastErr = json.Unmarshal([]byte(content), &v); lastErr == nil {
			metrics.JSONAttempts.WithLabelValues("valid").Inc()
			e.log.Debug("valid JSON generated", "attempt", attempt, "max", maxRetries)
			res.Data = json.RawMessage(content)
			res.RetriesUsed = attempt
			return res, nil
		}

		metrics.JSONAttempts.WithLabelValues("invalid").Inc()
		e.log.Warn("JSON validation failed", "attempt", attempt, "max", maxRetries, "error", lastErr)
		if attempt < maxRetries {
			local.Prompt += correction(lastErr)
		}
	}
	return res, &ValidationError{Attempts: maxRetries, LastErr: lastErr}
}

// StripCodeFences removes Markdown code fence markers and surrounding whitespace.
func StripCodeFences(s string) string {
	s = jsonFence.ReplaceAllLiteralString(s, "")
	s = plainFence.ReplaceAllLiteralString(s, "")
	return strings.TrimSpace(s)
}

func correction(err error) string {
	return fmt.Sprintf("\n\n[PREVIOUS ATTEMPT FAILED]\nError: %v\nPlease respond with ONLY valid JSON. No markdown, no explanations, no code blocks.", err)
}
