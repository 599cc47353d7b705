package grants

import "regexp"

// Field labels the grant-search instruction asks the model to emit. Changing
// any of them here or in prompts.yaml alone breaks extraction.
const (
	labelOpportunityNumber = "Funding Opportunity Number"
	labelCategoryOfFunding = "Category of Funding"
	labelCategory          = "Category"
	labelPostedDate        = "Posted Date"
	labelClosingDate       = "Closing Date"
	labelTotalFunding      = "Total Program Funding"
	labelExpectedAwards    = "Expected Number of Awards"
	labelEligibility       = "Eligibility"
	labelDetails           = "Details"
)

var fieldLabels = []string{
	labelOpportunityNumber,
	labelCategoryOfFunding,
	labelCategory,
	labelPostedDate,
	labelClosingDate,
	labelTotalFunding,
	labelExpectedAwards,
	labelEligibility,
	labelDetails,
}

var (
	markerPattern = regexp.MustCompile(`(?i)- \*\*(?:Funding Opportunity Number|Category of Funding|Category|Posted Date|Closing Date|Total Program Funding|Expected Number of Awards|Eligibility|Details):\*\*`)

	// sectionBoundary matches the start of a numbered entry: "1. ", "### 2. "
	// or "**3.". Splitting happens before each match.
	sectionBoundary = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]*)?(?:\d+\.\s|\*\*\s*\d+\.)`)

	introPattern = regexp.MustCompile(`(?i)^(?:Certainly|Here are|I found|Based on)`)

	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`###\s*\d+\.\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`^\s*\d+\.\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`\*\*\s*\d+\.\s*(.+?)\s*\*\*`),
		regexp.MustCompile(`\*\*\s*(.+?)\s*\*\*`),
		regexp.MustCompile(`^(.+?)(?:\n|$)`),
	}

	fieldPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(fieldLabels))
		for _, l := range fieldLabels {
			m[l] = regexp.MustCompile(`(?i)- \*\*` + regexp.QuoteMeta(l) + `:\*\*\s*(.+?)(?:\n|$)`)
		}
		return m
	}()

	eligibilityPattern = regexp.MustCompile(`(?is)- \*\*Eligibility:\*\*\s*(.+?)(?:\n|$)`)
	detailsPattern     = regexp.MustCompile(`(?is)- \*\*Details:\*\*\s*(.+?)(?:\s*-\s*🔗|\s*🔗|\n\n|$)`)
	moreInfoPattern    = regexp.MustCompile(`(?i)🔗\s*\[More Info\]\s*\(([^)]+)\)`)
	linkPattern        = regexp.MustCompile(`🔗\s*\[([^\]]+)\]\s*\(([^)]+)\)`)
	categorySeparator  = regexp.MustCompile(`,\s*`)
)

func hasMarkers(text string) bool {
	return markerPattern.MatchString(text)
}
