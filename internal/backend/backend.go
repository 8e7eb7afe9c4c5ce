package backend

import (
	"context"
	"fmt"

	"MediDiag/internal/config"
)

// Generator produces a reply for a single user message
type Generator interface {
	Generate(ctx context.Context, message string) (string, error)
	Name() string
}

// New creates the Generator selected by cfg.Provider
func New(cfg config.Gateway) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGroq:
		return NewGroq(GroqConfig{
			APIKey:       cfg.GroqAPIKey,
			BaseURL:      cfg.GroqBaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		}), nil
	case config.ProviderOllama:
		return NewOllama(OllamaConfig{
			URL:          cfg.OllamaURL,
			Model:        cfg.OllamaModel,
			SystemPrompt: cfg.SystemPrompt,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
