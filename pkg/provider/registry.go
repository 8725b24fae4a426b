package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/silentengine/silentengine/pkg/config"
	"github.com/silentengine/silentengine/pkg/models"
)

// DefaultPricing holds per-1K token prices for the stock upstream models.
var DefaultPricing = map[string]models.ModelPricing{
	"gpt-4o":                  {Model: "gpt-4o", InputCost: 0.0025, OutputCost: 0.01},
	"claude-3-haiku-20240307": {Model: "claude-3-haiku-20240307", InputCost: 0.00025, OutputCost: 0.00125},
	"llama-3.1-70b":           {Model: "llama-3.1-70b", InputCost: 0.00059, OutputCost: 0.00079},
	"gemini-1.5-flash":        {Model: "gemini-1.5-flash", InputCost: 0.000075, OutputCost: 0.0003},
}

// BuildOptions carries process-wide settings shared by every provider.
type BuildOptions struct {
	HealthInterval time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
	Client         *http.Client
	// StaticWithoutKey substitutes a Static provider for HTTP backends that
	// have no API key instead of failing every call with 401.
	StaticWithoutKey bool
}

// FromConfig builds a registry from the provider list. Pricing entries match a
// provider by id first, then by upstream model name.
func FromConfig(cfgs []config.ProviderConfig, pricing []models.ModelPricing, b BuildOptions) (Registry, error) {
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	prices := make(map[string]models.ModelPricing, len(pricing))
	for _, p := range pricing {
		prices[p.Model] = p
	}

	reg := make(Registry, len(cfgs))
	for _, pc := range cfgs {
		if _, dup := reg[pc.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", pc.ID)
		}
		opts := Options{
			ID:             pc.ID,
			Model:          pc.Model,
			BaseURL:        pc.URL,
			APIKey:         pc.APIKey,
			Timeout:        pc.Timeout,
			Client:         b.Client,
			Pricing:        lookupPricing(prices, pc),
			HealthInterval: b.HealthInterval,
			Now:            b.Now,
			Logger:         b.Logger,
		}

		if pc.Type == "static" || (b.StaticWithoutKey && pc.APIKey == "") {
			if pc.Type != "static" {
				b.Logger.Warn("no API key configured, serving placeholder responses", "provider", pc.ID)
			}
			reg[pc.ID] = NewStatic(pc.ID, pc.Model, opts)
			continue
		}

		switch pc.Type {
		case "openai":
			reg[pc.ID] = NewOpenAI(opts)
		case "groq":
			reg[pc.ID] = NewGroq(opts)
		case "openrouter":
			reg[pc.ID] = NewOpenRouter(opts)
		case "anthropic":
			reg[pc.ID] = NewAnthropic(opts)
		case "google":
			reg[pc.ID] = NewGoogle(opts)
		default:
			return nil, fmt.Errorf("provider %q: unknown type %q", pc.ID, pc.Type)
		}
	}
	return reg, nil
}

func lookupPricing(prices map[string]models.ModelPricing, pc config.ProviderConfig) models.ModelPricing {
	if p, ok := prices[pc.ID]; ok {
		return p
	}
	if p, ok := prices[pc.Model]; ok {
		return p
	}
	return DefaultPricing[pc.Model]
}
