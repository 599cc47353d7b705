package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Gateway sends one system instruction plus one user prompt to a chat
// completion model and returns the raw reply text.
type Gateway interface {
	Complete(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, error)
}

// Embedder turns text into a vector for similarity ranking.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Options tune one completion call. A zero Model means the gateway's
// configured model.
type Options struct {
	Model            string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// DefaultSearchOptions are the sampling settings used for grant search.
var DefaultSearchOptions = Options{
	Temperature: 0.1,
	MaxTokens:   2048,
	TopP:        1,
}

// DraftingOptions are used for application narrative sections.
var DraftingOptions = Options{
	Temperature: 0.4,
	MaxTokens:   1024,
	TopP:        1,
}
