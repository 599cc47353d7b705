package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/metrics"
)

// Stage is a step of one search. ClarificationReady and ResultsReady are
// terminal; AwaitingCompletion is the only step that blocks.
type Stage int

const (
	StageIdle Stage = iota
	StageBuilding
	StageAwaitingCompletion
	StageClassifying
	StageClarificationReady
	StageSplitting
	StageExtracting
	StageResultsReady
)

var stageNames = [...]string{
	"idle", "building", "awaiting_completion", "classifying",
	"clarification_ready", "splitting", "extracting", "results_ready",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// CompletionFailure is the one error a search surfaces after validation:
// the gateway failed or answered with nothing.
type CompletionFailure struct {
	Err error
}

func (e *CompletionFailure) Error() string {
	return "failed to find grants: " + e.Err.Error()
}

func (e *CompletionFailure) Unwrap() error { return e.Err }

type Finder struct {
	gateway  ai.Gateway
	classify Classifier
	logger   *zap.Logger
	opts     ai.Options
	system   string
	onStage  func(Stage)
}

type Option func(*Finder)

func WithClassifier(c Classifier) Option {
	return func(f *Finder) {
		if c != nil {
			f.classify = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

func WithCompletionOptions(o ai.Options) Option {
	return func(f *Finder) { f.opts = o }
}

// WithStageHook registers a callback invoked on every stage transition. It
// runs on the searching goroutine.
func WithStageHook(fn func(Stage)) Option {
	return func(f *Finder) { f.onStage = fn }
}

func WithSystemInstruction(s string) Option {
	return func(f *Finder) { f.system = s }
}

func NewFinder(gateway ai.Gateway, opts ...Option) *Finder {
	f := &Finder{
		gateway:  gateway,
		classify: ClassifyReply,
		logger:   zap.NewNop(),
		opts:     ai.DefaultSearchOptions,
		system:   ai.DefaultPrompts().GrantSearch,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Finder) enter(s Stage) {
	if f.onStage != nil {
		f.onStage(s)
	}
}

// Search runs one query end to end. The error is ErrEmptySearchTerm for an
// invalid query or a *CompletionFailure; parse problems never fail a search.
func (f *Finder) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	f.enter(StageIdle)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	f.enter(StageBuilding)
	prompt := BuildPrompt(q)

	f.enter(StageAwaitingCompletion)
	start := time.Now()
	raw, err := f.gateway.Complete(ctx, f.system, prompt, f.opts)
	metrics.CompletionDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ai.ErrEmptyCompletion
	}
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("failed").Inc()
		f.logger.Warn("completion failed",
			zap.String("search_term", q.SearchTerm),
			zap.Bool("canceled", errors.Is(err, context.Canceled)),
			zap.Error(err),
		)
		return nil, &CompletionFailure{Err: err}
	}

	res := f.Parse(raw)
	res.Prompt = prompt

	outcome := "results"
	if res.NeedsClarification() {
		outcome = "clarification"
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	f.logger.Info("search completed",
		zap.String("search_term", q.SearchTerm),
		zap.String("outcome", outcome),
		zap.Int("grants", len(res.Grants)),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return &res, nil
}

// Parse turns a raw reply into a result without calling the gateway.
func (f *Finder) Parse(raw string) SearchResult {
	f.enter(StageClassifying)
	if f.classify(raw) == ReplyClarification {
		f.enter(StageClarificationReady)
		return SearchResult{Clarification: &Clarification{Message: raw}}
	}

	f.enter(StageSplitting)
	sections, dropped := splitSections(raw)

	res := SearchResult{Grants: make([]GrantRecord, 0, len(sections)), Skipped: dropped}
	for _, s := range sections {
		f.enter(StageExtracting)
		rec, err := ExtractGrant(s)
		if err != nil {
			res.Skipped++
			metrics.SectionExtractionFailures.Inc()
			f.logger.Warn("skipping grant section", zap.Error(err))
			continue
		}
		res.Grants = append(res.Grants, *rec)
	}
	metrics.GrantsExtracted.Add(float64(len(res.Grants)))

	f.enter(StageResultsReady)
	return res
}
