package grants

import (
	"fmt"
	"strings"
)

// ExtractionError reports a candidate section that produced no record.
type ExtractionError struct {
	Section string // leading text of the section
	Reason  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("grant extraction failed (%s): %q", e.Reason, e.Section)
}

func newExtractionError(section, reason string) *ExtractionError {
	return &ExtractionError{Section: truncate(section, 80), Reason: reason}
}

// ExtractGrant reads one section into a record. Only the title can make it
// fail; every other field falls back to a default. A panic while reading is
// returned as an *ExtractionError.
func ExtractGrant(section string) (*GrantRecord, error) {
	return recoverExtract(section, extractGrant)
}

func recoverExtract(section string, extract func(string) (*GrantRecord, error)) (rec *GrantRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = newExtractionError(section, fmt.Sprint(r))
		}
	}()
	return extract(section)
}

func extractGrant(section string) (*GrantRecord, error) {
	section = strings.TrimSpace(section)
	title := extractTitle(section)
	if introPattern.MatchString(title) {
		return nil, newExtractionError(section, "title is introductory text")
	}

	categoryOfFunding := field(section, labelCategoryOfFunding, notSpecified)
	var category []string
	if categoryOfFunding != notSpecified {
		for _, c := range categorySeparator.Split(categoryOfFunding, -1) {
			category = append(category, strings.TrimSpace(c))
		}
	}

	var eligibility []string
	if m := eligibilityPattern.FindStringSubmatch(section); m != nil {
		if e := strings.TrimSpace(m[1]); e != "" {
			eligibility = []string{e}
		}
	}

	description := noDescription
	if m := detailsPattern.FindStringSubmatch(section); m != nil {
		description = strings.TrimSpace(m[1])
	}

	var moreInfo, appLink string
	if m := moreInfoPattern.FindStringSubmatch(section); m != nil {
		moreInfo = strings.TrimSpace(m[1])
	}
	if m := linkPattern.FindStringSubmatch(section); m != nil {
		appLink = strings.TrimSpace(m[2])
	}

	rec := &GrantRecord{
		Title:             title,
		Agency:            field(section, labelCategory, agencyNotSpecified),
		OpportunityNumber: field(section, labelOpportunityNumber, notSpecified),
		Deadline:          field(section, labelClosingDate, notSpecified),
		TotalFunding:      field(section, labelTotalFunding, notSpecified),
		CategoryOfFunding: categoryOfFunding,
		ExpectedAwards:    field(section, labelExpectedAwards, notSpecified),
		PostedDate:        field(section, labelPostedDate, notSpecified),
		Eligibility:       orEmpty(eligibility),
		Description:       description,
		Category:          orEmpty(category),
		ApplicationLink:   appLink,
		MoreInfoURL:       moreInfo,
		MatchReason:       matchReasonTemplate + strings.ToLower(title),
	}
	enrich(rec)
	return rec, nil
}

func extractTitle(section string) string {
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(section); m != nil {
			title := strings.TrimSpace(strings.ReplaceAll(m[1], "**", ""))
			if title == "" {
				return unknownGrantTitle
			}
			return title
		}
	}
	return unknownGrantTitle
}

// field returns the first value written as "- **Label:** value".
func field(section, label, fallback string) string {
	m := fieldPatterns[label].FindStringSubmatch(section)
	if m == nil {
		return fallback
	}
	return strings.TrimSpace(m[1])
}

// enrich fills the parsed companions. Unreadable text leaves them nil.
func enrich(rec *GrantRecord) {
	if rec.Deadline != notSpecified {
		if t, err := parseDate(rec.Deadline); err == nil {
			rec.DeadlineAt = &t
		}
	}
	if rec.PostedDate != notSpecified {
		if t, err := parseDate(rec.PostedDate); err == nil {
			rec.PostedAt = &t
		}
	}
	if rec.TotalFunding != notSpecified {
		if min, max, cur := parseAmount(rec.TotalFunding, "USD"); min > 0 || max > 0 {
			rec.Funding = &Amount{Min: min, Max: max, Currency: cur}
		}
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
