package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantmate_searches_total",
			Help: "Grant searches by outcome (results, clarification, failed)",
		},
		[]string{"outcome"},
	)

	GrantsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantmate_grants_extracted_total",
			Help: "Grant records extracted from completion replies",
		},
	)

	SectionExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grantmate_section_extraction_failures_total",
			Help: "Candidate sections that passed the splitter but yielded no grant record",
		},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grantmate_completion_duration_seconds",
			Help:    "Latency of completion gateway calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"purpose"},
	)

	DraftSectionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantmate_draft_sections_generated_total",
			Help: "Application sections generated or regenerated by the LLM",
		},
		[]string{"section", "mode"},
	)

	LinkChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantmate_link_checks_total",
			Help: "Grant link verifications by result",
		},
		[]string{"result"},
	)
)
