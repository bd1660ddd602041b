package main

import (
	"context"
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/ai"
	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

// newRegistry registers every backend. Clients are built once per model.
func newRegistry(cfg config.Config, log *logger.Logger) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", ai.Memoize(func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model)
	}))
	reg.Register("openrouter", ai.Memoize(func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	}))
	reg.Register("gemini", ai.Memoize(func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.GeminiModel
		}
		// detached: the client outlives the request that first asked for it
		return ai.NewGeminiProvider(context.WithoutCancel(ctx), cfg.GeminiAPIKey, model)
	}))

	log.Debug("ai providers registered", "names", reg.Names(), "default", cfg.AIProvider)
	return reg
}
