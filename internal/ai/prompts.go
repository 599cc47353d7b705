package ai

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts is the versioned prompt catalog. GrantSearch is the output-format
// contract the grant parser depends on: changing its field labels breaks
// extraction.
type Prompts struct {
	Version        string            `yaml:"version"`
	GrantSearch    string            `yaml:"grant_search"`
	DraftingSystem string            `yaml:"drafting_system"`
	Sections       map[string]string `yaml:"sections"`
	Regenerate     string            `yaml:"regenerate"`
}

var (
	defaultPromptsOnce sync.Once
	defaultPrompts     *Prompts
)

// DefaultPrompts returns the embedded catalog. The file ships with the
// binary, so a decode failure is a build defect and panics.
func DefaultPrompts() *Prompts {
	defaultPromptsOnce.Do(func() {
		p, err := ParsePrompts(promptsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded prompts.yaml: %v", err))
		}
		defaultPrompts = p
	})
	return defaultPrompts
}

func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode prompts: %w", err)
	}
	if strings.TrimSpace(p.Version) == "" {
		return nil, fmt.Errorf("prompts: missing version")
	}
	if strings.TrimSpace(p.GrantSearch) == "" {
		return nil, fmt.Errorf("prompts: missing grant_search instruction")
	}
	return &p, nil
}

// RequireSections reports the first section id without a template.
func (p *Prompts) RequireSections(ids []string) error {
	for _, id := range ids {
		if strings.TrimSpace(p.Sections[id]) == "" {
			return fmt.Errorf("prompts: no template for section %q", id)
		}
	}
	return nil
}
