package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silentengine/silentengine/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":4000", cfg.Listen)
	assert.Equal(t, "groq:llama-3.1-70b", cfg.Routing.Default)
	assert.Equal(t, time.Minute, cfg.RateLimits.Default.Window)
	assert.Equal(t, 100, cfg.RateLimits.Default.MaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.Health.Interval)
	assert.Len(t, cfg.Routing.Rules, 6)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "gsk-test-123")

	path := writeConfig(t, `
listen: ":9090"
providers:
  - id: groq:llama
    type: groq
    model: llama-3.1-70b
    api_key: ${TEST_GROQ_KEY}
  - id: anthropic:haiku
    type: anthropic
    model: claude-3-haiku-20240307
routing:
  default: groq:llama
  rules:
    - task_type: code
      primary: anthropic:haiku
      backup: groq:llama
      strategy: fallback
rate_limits:
  default:
    window: 30s
    max_requests: 5
  keys:
    vip:
      window: 1m
      max_requests: 500
logs:
  dir: /tmp/se-logs
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "gsk-test-123", cfg.Providers[0].APIKey)
	assert.Equal(t, 30*time.Second, cfg.RateLimits.Default.Window)
	assert.Equal(t, 500, cfg.RateLimits.Keys["vip"].MaxRequests)
	assert.Equal(t, "/tmp/se-logs", cfg.Logs.Dir)
	require.Len(t, cfg.Routing.Rules, 1)
	assert.Equal(t, models.StrategyFallback, cfg.Routing.Rules[0].Strategy)
	require.NoError(t, cfg.Validate())
}

func TestLoadProviderKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := Load("")
	require.NoError(t, err)

	for _, p := range cfg.Providers {
		if p.Type == "anthropic" {
			assert.Equal(t, "sk-ant-env", p.APIKey)
		}
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, cfg.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("ENGINE_API_KEY", strings.Repeat("k", 40))
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("HASH_PROMPTS", "true")
	t.Setenv("LOG_RETENTION_DAYS", "14")
	t.Setenv("PORT", "5000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)

	pc := cfg.PrivacyConfig()
	assert.False(t, pc.LogFullContent)
	assert.True(t, pc.RedactPII)
	assert.True(t, pc.HashPrompts)
	assert.Equal(t, 14, pc.RetentionDays)
}

func TestBadRetentionDays(t *testing.T) {
	t.Setenv("LOG_RETENTION_DAYS", "ninety")
	_, err := Load("")
	assert.Error(t, err)
}

func TestPrivacyConfigDevelopment(t *testing.T) {
	cfg := Default()
	pc := cfg.PrivacyConfig()
	assert.True(t, pc.LogFullContent)
	assert.False(t, pc.RedactPII)
	assert.False(t, pc.HashPrompts)
	assert.Equal(t, 90, pc.RetentionDays)
}

func TestValidateProduction(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "placeholder key",
			mutate:  func(c *Config) {},
			wantErr: "secure value",
		},
		{
			name:    "short key",
			mutate:  func(c *Config) { c.EngineKey = "short" },
			wantErr: "at least 32",
		},
		{
			name:    "no provider keys",
			mutate:  func(c *Config) { c.EngineKey = strings.Repeat("x", 32) },
			wantErr: "provider API key",
		},
		{
			name: "ok",
			mutate: func(c *Config) {
				c.EngineKey = strings.Repeat("x", 32)
				c.Providers[0].APIKey = "sk-1"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Mode = ModeProduction
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRouting(t *testing.T) {
	cfg := Default()
	cfg.Routing.Rules = append(cfg.Routing.Rules, models.RoutingRule{
		TaskType: "summary", PrimaryModel: "groq:llama-3.1-70b", Strategy: models.StrategyFallback,
	})
	assert.ErrorContains(t, cfg.Validate(), "requires a backup")

	cfg = Default()
	cfg.Routing.Default = "nope:model"
	assert.ErrorContains(t, cfg.Validate(), "not a registered provider")

	cfg = Default()
	cfg.Routing.Rules[0].BackupModel = "missing:model"
	assert.ErrorContains(t, cfg.Validate(), "backup")

	cfg = Default()
	cfg.Providers = append(cfg.Providers, cfg.Providers[0])
	assert.ErrorContains(t, cfg.Validate(), "duplicate")
}
