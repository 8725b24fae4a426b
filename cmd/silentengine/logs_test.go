package main

import (
	"testing"

	"github.com/silentengine/silentengine/pkg/models"
)

func TestLogFilter(t *testing.T) {
	rec := models.RequestLog{
		Request:      models.GenerateRequest{Prompt: "p"},
		Response:     models.GenerateResponse{Model: "llama-3.1-70b"},
		FallbackUsed: true,
	}

	tests := []struct {
		name   string
		filter logFilter
		want   bool
	}{
		{"empty", logFilter{}, true},
		{"model match", logFilter{model: "llama-3.1-70b"}, true},
		{"model mismatch", logFilter{model: "gpt-4o"}, false},
		{"empty task type is general", logFilter{taskType: "general"}, true},
		{"task type mismatch", logFilter{taskType: "code"}, false},
		{"errors only", logFilter{errorsOnly: true}, false},
		{"fallback only", logFilter{fallbackOnly: true}, true},
	}
	for _, tt := range tests {
		if got := tt.filter.match(rec); got != tt.want {
			t.Errorf("%s: match = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\nb", 10); got != "a b" {
		t.Errorf("got %q", got)
	}
	if got := oneLine("abcdef", 3); got != "abc..." {
		t.Errorf("got %q", got)
	}
}
