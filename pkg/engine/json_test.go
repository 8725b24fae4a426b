package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silentengine/silentengine/pkg/models"
)

func TestGenerateJSONStripsFences(t *testing.T) {
	h := newHarness()
	h.primary.content = func(int) string { return "```json\n{\"a\": 1}\n```" }

	res, err := h.engine.GenerateJSON(context.Background(), models.GenerateRequest{Prompt: "give json", TaskType: models.TaskCode}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RetriesUsed)
	assert.JSONEq(t, `{"a": 1}`, string(res.Data))
	assert.Equal(t, models.TaskJSON, h.rec.recs[0].req.TaskType)
}

func TestGenerateJSONRetriesWithCorrection(t *testing.T) {
	h := newHarness()
	h.primary.content = func(call int) string {
		if call < 3 {
			return "Sure! here is your data"
		}
		return `[1,2,3]`
	}

	req := models.GenerateRequest{Prompt: "list"}
	res, err := h.engine.GenerateJSON(context.Background(), req, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RetriesUsed)
	assert.Equal(t, "list", req.Prompt, "caller's request is not modified")
	assert.True(t, strings.HasPrefix(h.primary.prompts[1], "list\n\n[PREVIOUS ATTEMPT FAILED]\nError: "))
}

func TestGenerateJSONExhaustsRetries(t *testing.T) {
	h := newHarness()
	h.primary.content = func(int) string { return "not json at all" }

	res, err := h.engine.GenerateJSON(context.Background(), models.GenerateRequest{Prompt: "p"}, 4)
	require.Error(t, err)
	assert.Len(t, res.Responses, 4, "every attempt is reported for usage accounting")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 4, ve.Attempts)
	assert.Contains(t, err.Error(), "failed to generate valid JSON after 4 attempts")

	require.Len(t, h.primary.prompts, 4)
	for i := 1; i < len(h.primary.prompts); i++ {
		prev, cur := h.primary.prompts[i-1], h.primary.prompts[i]
		assert.NotEqual(t, prev, cur)
		assert.True(t, strings.HasPrefix(cur, prev))
		assert.Contains(t, cur[len(prev):], ve.LastErr.Error())
		assert.Contains(t, cur, "Please respond with ONLY valid JSON.")
	}
}

func TestGenerateJSONDefaultsToThreeAttempts(t *testing.T) {
	h := newHarness()
	h.primary.content = func(int) string { return "nope" }

	_, err := h.engine.GenerateJSON(context.Background(), models.GenerateRequest{Prompt: "p"}, 0)
	require.Error(t, err)
	assert.Equal(t, DefaultMaxJSONRetries, h.primary.calls)
}

func TestGenerateJSONStopsOnGenerateError(t *testing.T) {
	h := newHarness()
	h.primary.err = errors.New("down")

	_, err := h.engine.GenerateJSON(context.Background(), models.GenerateRequest{Prompt: "p"}, 3)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, 1, h.primary.calls)
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{}\n```": "{}",
		"```\n[1]```":      "[1]",
		"  {\"a\":true} ":  `{"a":true}`,
		"no fences":        "no fences",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFences(in), in)
	}
}
