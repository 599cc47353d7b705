package ai

import (
	"fmt"
	"strings"

	"github.com/david/grantmate/internal/config"
)

// NewGateway builds the completion gateway for the configured provider. The
// returned Embedder is nil when the provider has no embedding endpoint.
func NewGateway(cfg config.LLMConfig) (Gateway, Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		g := NewOpenAIGateway(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.BaseURL)
		return g, g, nil
	case "ollama":
		c := NewOllamaClient(cfg.BaseURL, cfg.EmbeddingModel, cfg.Model)
		return c, c, nil
	case "claude":
		return NewClaudeGateway(cfg.APIKey, cfg.Model, cfg.BaseURL), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
