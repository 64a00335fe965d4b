package ai

import (
	"context"

	"github.com/suPer8Hu/chatform/internal/config"
)

// NewRegistryFromConfig registers every supported provider with settings from cfg.
func NewRegistryFromConfig(cfg config.Config) *Registry {
	reg := NewRegistry()

	reg.Register(geminiName, func(ctx context.Context, model string) (Provider, error) {
		if model == "" {
			model = cfg.GeminiModel
		}
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   model,
			BaseURL: cfg.GeminiBaseURL,
			Timeout: cfg.GenerationTimeout,
		})
	})

	reg.Register(ollamaName, func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		if model == "" {
			model = cfg.OllamaModel
		}
		return NewOllamaProvider(cfg.OllamaBaseURL, model, cfg.GenerationTimeout), nil
	})

	reg.Register(openRouterName, func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return NewOpenRouterProvider(OpenRouterConfig{
			BaseURL: cfg.OpenRouterBaseURL,
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   model,
			SiteURL: cfg.OpenRouterSiteURL,
			AppName: cfg.OpenRouterAppName,
			Timeout: cfg.GenerationTimeout,
		}), nil
	})

	return reg
}

// FromConfig resolves the provider named by AI_PROVIDER. Call once at startup.
func FromConfig(ctx context.Context, cfg config.Config) (Provider, error) {
	return NewRegistryFromConfig(cfg).Get(ctx, cfg.AIProvider, "")
}
