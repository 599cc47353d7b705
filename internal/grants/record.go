package grants

import (
	"encoding/json"
	"time"
)

const (
	notSpecified        = "Not specified"
	agencyNotSpecified  = "Agency not specified"
	noDescription       = "No description available"
	unknownGrantTitle   = "Unknown Grant"
	matchReasonTemplate = "Matches your search criteria for "
)

// Amount is the best-effort numeric reading of a funding string. A zero
// bound means the text did not state it.
type Amount struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// GrantRecord is one grant as described by the model. The string fields are
// authoritative; DeadlineAt, PostedAt and Funding are parsed companions and
// stay nil when the text cannot be read.
type GrantRecord struct {
	Title             string   `json:"title"`
	Agency            string   `json:"agency"`
	OpportunityNumber string   `json:"opportunity_number"`
	Deadline          string   `json:"deadline"`
	TotalFunding      string   `json:"total_funding"`
	CategoryOfFunding string   `json:"category_of_funding"`
	ExpectedAwards    string   `json:"expected_awards"`
	PostedDate        string   `json:"posted_date"`
	Eligibility       []string `json:"eligibility"`
	Description       string   `json:"description"`
	Category          []string `json:"category"`
	ApplicationLink   string   `json:"application_link"`
	MoreInfoURL       string   `json:"more_info_url"`
	MatchReason       string   `json:"match_reason"`

	DeadlineAt *time.Time `json:"deadline_at,omitempty"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	Funding    *Amount    `json:"funding,omitempty"`
}

// Clarification is a reply in which the model asks the user a question
// instead of listing grants. Message is the reply verbatim.
type Clarification struct {
	Message string `json:"message"`
}

// SearchResult holds either Grants or a Clarification, never both.
type SearchResult struct {
	Grants        []GrantRecord
	Clarification *Clarification

	// Prompt and Skipped describe how the result was produced. They are not
	// part of the JSON form.
	Prompt  string
	Skipped int
}

func (r SearchResult) NeedsClarification() bool {
	return r.Clarification != nil
}

type searchResultJSON struct {
	NeedsClarification bool          `json:"needs_clarification"`
	Message            string        `json:"message,omitempty"`
	Grants             []GrantRecord `json:"grants,omitempty"`
}

func (r SearchResult) MarshalJSON() ([]byte, error) {
	if r.Clarification != nil {
		return json.Marshal(searchResultJSON{NeedsClarification: true, Message: r.Clarification.Message})
	}
	grants := r.Grants
	if grants == nil {
		grants = []GrantRecord{}
	}
	return json.Marshal(struct {
		NeedsClarification bool          `json:"needs_clarification"`
		Grants             []GrantRecord `json:"grants"`
	}{false, grants})
}

func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var aux searchResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = SearchResult{}
	if aux.NeedsClarification {
		r.Clarification = &Clarification{Message: aux.Message}
		return nil
	}
	r.Grants = aux.Grants
	if r.Grants == nil {
		r.Grants = []GrantRecord{}
	}
	return nil
}
