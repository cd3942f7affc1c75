package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tanutb/AnanBot/internal/config"
)

// Clients bundles every capability the agent core consumes. Individual
// fields may be nil when the configured provider does not support that
// capability; the core degrades the corresponding feature.
type Clients struct {
	Chat      ChatGenerator
	Text      TextGenerator
	Embedding EmbeddingGenerator
	Image     ImageGenerator
}

// NewClients builds the capability clients for the configured provider.
func NewClients(ctx context.Context, cfg config.LLMConfig) (*Clients, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case "gemini", "":
		gc, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:         cfg.GoogleAPIKey,
			Model:          cfg.GeminiModel,
			ImageModel:     cfg.ImageModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        timeout,
		})
		if err != nil {
			return nil, err
		}
		return &Clients{Chat: gc, Text: gc, Embedding: gc, Image: gc}, nil

	case "ollama":
		oc := NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel, Timeout: timeout})
		emb := NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.EmbeddingModel, Timeout: timeout})
		clients := &Clients{Chat: oc, Text: oc, Embedding: emb}
		// Ollama has no image backend; image actions are attached to Gemini
		// when a Google key is present, otherwise disabled.
		if cfg.GoogleAPIKey != "" {
			gc, err := NewGeminiClient(ctx, GeminiConfig{
				APIKey:     cfg.GoogleAPIKey,
				ImageModel: cfg.ImageModel,
				Timeout:    timeout,
			})
			if err == nil {
				clients.Image = gc
			}
		}
		return clients, nil

	case "openai":
		oc := NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, Timeout: timeout})
		clients := &Clients{Chat: oc, Text: oc}
		if cfg.GoogleAPIKey != "" {
			gc, err := NewGeminiClient(ctx, GeminiConfig{
				APIKey:         cfg.GoogleAPIKey,
				ImageModel:     cfg.ImageModel,
				EmbeddingModel: cfg.EmbeddingModel,
				Timeout:        timeout,
			})
			if err == nil {
				clients.Embedding = gc
				clients.Image = gc
			}
		}
		return clients, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
