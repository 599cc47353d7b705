package drafting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/metrics"
	"github.com/david/grantmate/internal/models"
)

type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Sections is the fixed order of an application narrative.
var Sections = []Section{
	{ID: "problem-statement", Title: "Problem Statement"},
	{ID: "project-description", Title: "Project Description"},
	{ID: "methodology", Title: "Methodology"},
	{ID: "evaluation", Title: "Evaluation Plan"},
	{ID: "budget-narrative", Title: "Budget Narrative"},
	{ID: "organizational-capacity", Title: "Organizational Capacity"},
}

var ErrUnknownSection = errors.New("unknown application section")

// LookupSection returns the section and its position in Sections.
func LookupSection(id string) (Section, int, error) {
	for i, s := range Sections {
		if s.ID == id {
			return s, i, nil
		}
	}
	return Section{}, -1, fmt.Errorf("%w: %q", ErrUnknownSection, id)
}

func sectionIDs() []string {
	ids := make([]string, len(Sections))
	for i, s := range Sections {
		ids[i] = s.ID
	}
	return ids
}

// WizardInput is what the application wizard collects before drafting.
type WizardInput struct {
	ApplicationTitle     string `json:"application_title"`
	ClientID             string `json:"client_id"`
	GrantOpportunity     string `json:"grant_opportunity"`
	ProjectTitle         string `json:"project_title"`
	ProjectDescription   string `json:"project_description"`
	FundingAmount        string `json:"funding_amount"`
	ProjectDuration      string `json:"project_duration"`
	TargetPopulation     string `json:"target_population"`
	GeographicArea       string `json:"geographic_area"`
	OrganizationCapacity string `json:"organization_capacity"`
}

func (w WizardInput) Validate() error {
	var missing []string
	if strings.TrimSpace(w.ApplicationTitle) == "" {
		missing = append(missing, "application_title")
	}
	if strings.TrimSpace(w.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(w.ProjectTitle) == "" {
		missing = append(missing, "project_title")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

type promptData struct {
	WizardInput
	ClientName string
	Mission    string
}

type regenerateData struct {
	SectionTitle string
	Current      string
	Instructions string
}

// GeneratedSection is one drafted section in application order.
type GeneratedSection struct {
	Section
	Position int    `json:"position"`
	Content  string `json:"content"`
}

type Drafter struct {
	gateway    ai.Gateway
	system     string
	sections   map[string]*template.Template
	regenerate *template.Template
	opts       ai.Options
	logger     *zap.Logger
}

func NewDrafter(gateway ai.Gateway, prompts *ai.Prompts, logger *zap.Logger) (*Drafter, error) {
	if err := prompts.RequireSections(sectionIDs()); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Drafter{
		gateway:  gateway,
		system:   prompts.DraftingSystem,
		sections: make(map[string]*template.Template, len(Sections)),
		opts:     ai.DraftingOptions,
		logger:   logger,
	}
	for _, s := range Sections {
		tmpl, err := template.New(s.ID).Option("missingkey=error").Parse(prompts.Sections[s.ID])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt: %w", s.ID, err)
		}
		d.sections[s.ID] = tmpl
	}
	regen, err := template.New("regenerate").Parse(prompts.Regenerate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regenerate prompt: %w", err)
	}
	d.regenerate = regen
	return d, nil
}

func withGuidance(prompt, guidance string) string {
	guidance = strings.TrimSpace(guidance)
	if guidance == "" {
		return prompt
	}
	return prompt + "\n\nFunder guidance from the RFP (use its language and priorities):\n" + guidance
}

func (d *Drafter) complete(ctx context.Context, sectionID, mode, prompt string) (string, error) {
	start := time.Now()
	out, err := d.gateway.Complete(ctx, d.system, prompt, d.opts)
	metrics.CompletionDuration.WithLabelValues("drafting").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("failed to %s %s: %w", mode, sectionID, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("failed to %s %s: %w", mode, sectionID, ai.ErrEmptyCompletion)
	}
	metrics.DraftSectionsGenerated.WithLabelValues(sectionID, mode).Inc()
	return out, nil
}

// SectionPrompt renders the user prompt for one section.
func (d *Drafter) SectionPrompt(in WizardInput, client models.Client, sectionID, funderGuidance string) (string, error) {
	if _, _, err := LookupSection(sectionID); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	data := promptData{WizardInput: in, ClientName: client.Name, Mission: client.MissionStatement}
	if err := d.sections[sectionID].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", sectionID, err)
	}
	return withGuidance(strings.TrimSpace(buf.String()), funderGuidance), nil
}

func (d *Drafter) GenerateSection(ctx context.Context, in WizardInput, client models.Client, sectionID, funderGuidance string) (string, error) {
	prompt, err := d.SectionPrompt(in, client, sectionID, funderGuidance)
	if err != nil {
		return "", err
	}
	return d.complete(ctx, sectionID, "generate", prompt)
}

// GenerateDraft drafts every section in order and stops at the first failure.
func (d *Drafter) GenerateDraft(ctx context.Context, in WizardInput, client models.Client, funderGuidance string) ([]GeneratedSection, error) {
	out := make([]GeneratedSection, 0, len(Sections))
	for i, s := range Sections {
		content, err := d.GenerateSection(ctx, in, client, s.ID, funderGuidance)
		if err != nil {
			return out, err
		}
		d.logger.Debug("section drafted", zap.String("section", s.ID), zap.Int("words", WordCount(content)))
		out = append(out, GeneratedSection{Section: s, Position: i, Content: content})
	}
	return out, nil
}

// Regenerate asks for an improved version of existing section content.
func (d *Drafter) Regenerate(ctx context.Context, sectionID, current, instructions, funderGuidance string) (string, error) {
	section, _, err := LookupSection(sectionID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(current) == "" {
		return "", fmt.Errorf("section %s has no content to regenerate", sectionID)
	}

	var buf bytes.Buffer
	if err := d.regenerate.Execute(&buf, regenerateData{
		SectionTitle: section.Title,
		Current:      current,
		Instructions: strings.TrimSpace(instructions),
	}); err != nil {
		return "", fmt.Errorf("failed to render regenerate prompt: %w", err)
	}
	return d.complete(ctx, sectionID, "regenerate", withGuidance(strings.TrimSpace(buf.String()), funderGuidance))
}
