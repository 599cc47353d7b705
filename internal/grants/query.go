package grants

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ErrEmptySearchTerm = errors.New("search term is required")

// FundingRange bounds are optional. A zero bound is treated the same as an
// absent one when the prompt is built.
type FundingRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type SearchQuery struct {
	SearchTerm      string        `json:"search_term"`
	Organization    string        `json:"organization,omitempty"`
	FocusArea       string        `json:"focus_area,omitempty"`
	Location        string        `json:"location,omitempty"`
	EligibilityType string        `json:"eligibility_type,omitempty"`
	FundingRange    *FundingRange `json:"funding_range,omitempty"`
}

func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.SearchTerm) == "" {
		return ErrEmptySearchTerm
	}
	return nil
}

var amountPrinter = message.NewPrinter(language.AmericanEnglish)

func formatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

func bound(v *float64) (float64, bool) {
	if v == nil || *v == 0 {
		return 0, false
	}
	return *v, true
}

// BuildPrompt renders the query as the single question sent to the model.
// Clauses appear in a fixed order and only for fields that are set.
func BuildPrompt(q SearchQuery) string {
	var b strings.Builder
	b.WriteString("Can you help me find grants for ")
	b.WriteString(q.SearchTerm)

	if q.Location != "" {
		b.WriteString(" in " + q.Location)
	}
	if q.Organization != "" {
		b.WriteString(" for " + q.Organization)
	}
	if q.FocusArea != "" {
		b.WriteString(" focusing on " + q.FocusArea)
	}

	if q.FundingRange != nil {
		min, hasMin := bound(q.FundingRange.Min)
		max, hasMax := bound(q.FundingRange.Max)
		switch {
		case hasMin && hasMax:
			b.WriteString(" with funding between $" + formatAmount(min) + " and $" + formatAmount(max))
		case hasMin:
			b.WriteString(" with minimum funding of $" + formatAmount(min))
		case hasMax:
			b.WriteString(" with maximum funding of $" + formatAmount(max))
		}
	}

	if q.EligibilityType != "" {
		b.WriteString(" for " + q.EligibilityType)
	}

	b.WriteByte('?')
	return b.String()
}

// MissionIgnored marks that BuildSuggestionQuery does not use the mission
// statement it is given. Callers that want mission-driven suggestions must
// fold it into the focus areas themselves.
const MissionIgnored = true

// BuildSuggestionQuery builds a search for an organization profile. The
// second argument, the mission statement, is not part of the query; see
// MissionIgnored.
func BuildSuggestionQuery(orgName, _ string, focusAreas []string) SearchQuery {
	joined := strings.Join(focusAreas, ", ")
	return SearchQuery{
		SearchTerm:   joined,
		FocusArea:    joined,
		Organization: orgName,
	}
}
