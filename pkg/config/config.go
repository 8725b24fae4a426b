package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
	"gopkg.in/yaml.v3"
)

// Mode is the deployment mode, read from NODE_ENV or ENGINE_MODE.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTest        Mode = "test"
)

// PlaceholderEngineKey is the development default that production refuses to start with.
const PlaceholderEngineKey = "dev-key-change-in-production"

// Config holds all engine configuration.
type Config struct {
	Listen         string                `yaml:"listen"`
	Mode           Mode                  `yaml:"mode"`
	LogLevel       string                `yaml:"log_level"`
	EngineKey      string                `yaml:"engine_key"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	DBPath         string                `yaml:"db_path"`
	Providers      []ProviderConfig      `yaml:"providers"`
	Routing        RoutingConfig         `yaml:"routing"`
	RateLimits     RateLimitsConfig      `yaml:"rate_limits"`
	Logs           LogsConfig            `yaml:"logs"`
	Privacy        PrivacyOverrides      `yaml:"privacy"`
	Health         HealthConfig          `yaml:"health"`
	JSONMode       JSONModeConfig        `yaml:"json_mode"`
	Pricing        []models.ModelPricing `yaml:"pricing"`
}

// ProviderConfig registers one provider id against a backend.
// Type is "openai", "groq", "openrouter", "anthropic", "google" or "static".
type ProviderConfig struct {
	ID      string        `yaml:"id"`
	Type    string        `yaml:"type"`
	Model   string        `yaml:"model"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// RoutingConfig maps task types to providers.
type RoutingConfig struct {
	Default string               `yaml:"default"`
	Rules   []models.RoutingRule `yaml:"rules"`
}

// RateLimitsConfig holds the global default quota and per-key overrides.
type RateLimitsConfig struct {
	Default         models.RateLimitConfig            `yaml:"default"`
	Keys            map[string]models.RateLimitConfig `yaml:"keys"`
	EstimatedTokens int64                             `yaml:"estimated_tokens"`
	EstimatedCost   float64                           `yaml:"estimated_cost"`
	SweepInterval   time.Duration                     `yaml:"sweep_interval"`
}

// LogsConfig controls request log persistence and archival.
type LogsConfig struct {
	Dir              string `yaml:"dir"`
	MaxInMemory      int    `yaml:"max_in_memory"`
	ArchiveAfterDays int    `yaml:"archive_after_days"`
	ArchiveHour      int    `yaml:"archive_hour"`
}

// PrivacyOverrides lets the YAML file pin privacy flags that are otherwise derived
// from Mode and the environment. Nil fields keep the derived value.
type PrivacyOverrides struct {
	LogFullContent *bool `yaml:"log_full_content"`
	RedactPII      *bool `yaml:"redact_pii"`
	HashPrompts    *bool `yaml:"hash_prompts"`
	RetentionDays  *int  `yaml:"retention_days"`
}

// HealthConfig controls provider health probing.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// JSONModeConfig controls the generate-json helper.
type JSONModeConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// providerEnv maps backend types to the environment variable holding their key.
var providerEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// Default returns a Config with the stock provider registry and routing table.
func Default() *Config {
	return &Config{
		Listen:    ":4000",
		Mode:      ModeDevelopment,
		LogLevel:  "info",
		EngineKey: PlaceholderEngineKey,
		DBPath:    "silentengine.db",
		Providers: []ProviderConfig{
			{ID: "openai:gpt-4o", Type: "openai", Model: "gpt-4o"},
			{ID: "anthropic:claude-haiku-4", Type: "anthropic", Model: "claude-3-haiku-20240307"},
			{ID: "groq:llama-3.1-70b", Type: "groq", Model: "llama-3.1-70b"},
			{ID: "google:gemini-1.5-flash", Type: "google", Model: "gemini-1.5-flash"},
		},
		Routing: RoutingConfig{
			Default: "groq:llama-3.1-70b",
			Rules: []models.RoutingRule{
				{TaskType: models.TaskCode, PrimaryModel: "anthropic:claude-haiku-4", BackupModel: "groq:llama-3.1-70b", Strategy: models.StrategyFallback},
				{TaskType: models.TaskAnalysis, PrimaryModel: "anthropic:claude-haiku-4", BackupModel: "groq:llama-3.1-70b", Strategy: models.StrategyFallback},
				{TaskType: models.TaskJSON, PrimaryModel: "groq:llama-3.1-70b", Strategy: models.StrategySingle},
				{TaskType: models.TaskCreative, PrimaryModel: "anthropic:claude-haiku-4", BackupModel: "groq:llama-3.1-70b", Strategy: models.StrategyFallback},
				{TaskType: models.TaskExplanation, PrimaryModel: "groq:llama-3.1-70b", BackupModel: "google:gemini-1.5-flash", Strategy: models.StrategyFallback},
				{TaskType: models.TaskChat, PrimaryModel: "groq:llama-3.1-70b", Strategy: models.StrategySingle},
			},
		},
		RateLimits: RateLimitsConfig{
			Default: models.RateLimitConfig{
				Window:      time.Minute,
				MaxRequests: 100,
				MaxTokens:   100_000,
				MaxCost:     1.0,
			},
			EstimatedTokens: 1000,
			EstimatedCost:   0.01,
			SweepInterval:   time.Minute,
		},
		Logs: LogsConfig{
			Dir:              "./logs",
			MaxInMemory:      1000,
			ArchiveAfterDays: 30,
			ArchiveHour:      2,
		},
		Health: HealthConfig{
			Interval: 5 * time.Minute,
		},
		JSONMode: JSONModeConfig{
			MaxRetries: 3,
		},
	}
}

// Load reads a YAML config file, expands ${VAR} references and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as empty.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

func (c *Config) applyEnv() error {
	if v := firstEnv("ENGINE_MODE", "NODE_ENV"); v != "" {
		c.Mode = Mode(v)
	}
	if v := os.Getenv("ENGINE_API_KEY"); v != "" {
		c.EngineKey = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Logs.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HASH_PROMPTS"); v != "" {
		b := v == "true"
		c.Privacy.HashPrompts = &b
	}
	if v := os.Getenv("LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LOG_RETENTION_DAYS: %w", err)
		}
		c.Privacy.RetentionDays = &n
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey != "" {
			continue
		}
		if env, ok := providerEnv[p.Type]; ok {
			p.APIKey = os.Getenv(env)
		}
	}
	return nil
}

// PrivacyConfig derives the log sanitization settings from Mode and overrides.
func (c *Config) PrivacyConfig() models.PrivacyConfig {
	pc := models.PrivacyConfig{
		LogFullContent: c.Mode == ModeDevelopment,
		RedactPII:      c.Mode == ModeProduction,
		RetentionDays:  90,
	}
	if c.Privacy.LogFullContent != nil {
		pc.LogFullContent = *c.Privacy.LogFullContent
	}
	if c.Privacy.RedactPII != nil {
		pc.RedactPII = *c.Privacy.RedactPII
	}
	if c.Privacy.HashPrompts != nil {
		pc.HashPrompts = *c.Privacy.HashPrompts
	}
	if c.Privacy.RetentionDays != nil {
		pc.RetentionDays = *c.Privacy.RetentionDays
	}
	return pc
}

// Validate checks the routing table against the provider registry and, in
// production, refuses weak engine keys and a registry with no credentials.
func (c *Config) Validate() error {
	ids := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("provider with empty id")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		ids[p.ID] = true
	}

	if c.Routing.Default == "" {
		return errors.New("routing.default is required")
	}
	if !ids[c.Routing.Default] {
		return fmt.Errorf("routing.default %q is not a registered provider", c.Routing.Default)
	}
	for _, r := range c.Routing.Rules {
		if !ids[r.PrimaryModel] {
			return fmt.Errorf("rule %q: primary %q is not a registered provider", r.TaskType, r.PrimaryModel)
		}
		switch r.Strategy {
		case models.StrategySingle:
		case models.StrategyFallback:
			if r.BackupModel == "" {
				return fmt.Errorf("rule %q: fallback strategy requires a backup", r.TaskType)
			}
		default:
			return fmt.Errorf("rule %q: unknown strategy %q", r.TaskType, r.Strategy)
		}
		if r.BackupModel != "" && !ids[r.BackupModel] {
			return fmt.Errorf("rule %q: backup %q is not a registered provider", r.TaskType, r.BackupModel)
		}
	}

	if c.RateLimits.Default.Window <= 0 || c.RateLimits.Default.MaxRequests <= 0 {
		return errors.New("rate_limits.default needs a positive window and max_requests")
	}

	if c.Mode != ModeProduction {
		return nil
	}
	if c.EngineKey == "" || c.EngineKey == PlaceholderEngineKey {
		return errors.New("ENGINE_API_KEY must be set to a secure value in production")
	}
	if len(c.EngineKey) < 32 {
		return errors.New("ENGINE_API_KEY must be at least 32 characters long")
	}
	for _, p := range c.Providers {
		if p.APIKey != "" {
			return nil
		}
	}
	return errors.New("at least one provider API key must be configured")
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
