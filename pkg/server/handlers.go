package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/dashboard"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/provider"
)

const jsonHint = "The model failed to generate valid JSON after multiple attempts"

// generateJSONRequest is the body of /v1/generate-json. It always routes as
// the json task type, so a taskType field in the body is ignored.
type generateJSONRequest struct {
	Prompt      string   `json:"prompt"`
	MaxRetries  int      `json:"maxRetries,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateJSONResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    *jsonMeta       `json:"meta,omitempty"`
	Error   string          `json:"error,omitempty"`
	Hint    string          `json:"hint,omitempty"`
}

type jsonMeta struct {
	RetriesUsed int `json:"retriesUsed"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.GenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRequest(req.Prompt, req.TaskType, req.MaxTokens); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The provider call and log write run to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	resp, err := s.engine.Generate(ctx, req)
	if err != nil {
		s.log.Error("/v1/generate failed", "task_type", req.TaskType.OrDefault(), "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.recordUsage(ctx, rateLimitKey(r.Context()), req.TaskType, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body generateJSONRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRequest(body.Prompt, "", body.MaxTokens); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.MaxRetries < 0 || body.MaxRetries > maxJSONRetries {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("maxRetries must be between 0 and %d", maxJSONRetries))
		return
	}

	req := models.GenerateRequest{
		Prompt:      body.Prompt,
		TaskType:    models.TaskJSON,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	}
	ctx := context.WithoutCancel(r.Context())
	maxRetries := body.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.JSONMode.MaxRetries
	}
	res, err := s.engine.GenerateJSON(ctx, req, maxRetries)

	key := rateLimitKey(r.Context())
	for _, resp := range res.Responses {
		s.recordUsage(ctx, key, models.TaskJSON, resp)
	}

	if err != nil {
		s.log.Error("/v1/generate-json failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, generateJSONResponse{
			Success: false,
			Error:   err.Error(),
			Hint:    jsonHint,
		})
		return
	}
	writeJSON(w, http.StatusOK, generateJSONResponse{
		Success: true,
		Data:    res.Data,
		Meta:    &jsonMeta{RetriesUsed: res.RetriesUsed},
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = dashboard.DefaultDays
	}
	overview, err := s.dashboard.UsageOverview(r.Context(), days)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleCostProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	projection, err := s.dashboard.CostProjection(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

type providerHealth struct {
	Healthy   bool       `json:"healthy"`
	CheckedAt *time.Time `json:"checkedAt,omitempty"`
}

// handleHealth reports cached provider verdicts without probing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]providerHealth, len(s.providers))
	for _, id := range s.providers.IDs() {
		p, _ := s.providers.Get(id)
		ph := providerHealth{Healthy: true}
		if hr, ok := p.(interface{ Health() *provider.HealthTracker }); ok {
			healthy, checkedAt := hr.Health().Status()
			ph.Healthy = healthy
			if !checkedAt.IsZero() {
				ph.CheckedAt = &checkedAt
			}
		}
		out[id] = ph
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      s.cfg.Mode,
		"providers": out,
	})
}

// recordUsage charges one successful generation to the rate limiter and the
// usage tracker.
func (s *Server) recordUsage(ctx context.Context, key string, task models.TaskType, resp models.GenerateResponse) {
	s.limiter.RecordUsage(key, int64(resp.Tokens.Total), resp.Cost)
	if s.tracker == nil {
		return
	}
	err := s.tracker.Record(ctx, models.UsageRecord{
		APIKey:       key,
		Provider:     resp.Provider,
		Model:        resp.Model,
		TaskType:     task.OrDefault(),
		InputTokens:  resp.Tokens.Input,
		OutputTokens: resp.Tokens.Output,
		TotalTokens:  resp.Tokens.Total,
		Cost:         resp.Cost,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("usage tracking failed", "error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func validateRequest(prompt string, task models.TaskType, maxTokens *int) error {
	if prompt == "" {
		return errors.New("prompt is required")
	}
	if task != "" && !task.Valid() {
		return fmt.Errorf("unknown taskType %q", task)
	}
	if maxTokens != nil && *maxTokens <= 0 {
		return errors.New("maxTokens must be a positive integer")
	}
	return nil
}
