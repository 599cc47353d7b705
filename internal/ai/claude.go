package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeGateway struct {
	client *anthropic.Client
	model  string
}

func NewClaudeGateway(apiKey, model, baseURL string) *ClaudeGateway {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeGateway{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (g *ClaudeGateway) Complete(ctx context.Context, systemInstruction, userPrompt string, opts Options) (string, error) {
	model := g.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024 // required by the messages API
	}

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    systemInstruction,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(userPrompt),
		},
	}
	temperature := opts.Temperature
	req.Temperature = &temperature
	if opts.TopP > 0 && opts.TopP < 1 {
		topP := opts.TopP
		req.TopP = &topP
	}

	resp, err := g.client.CreateMessages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var b strings.Builder
	for _, content := range resp.Content {
		if content.Text != nil {
			b.WriteString(*content.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return b.String(), nil
}
