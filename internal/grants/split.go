package grants

import (
	"strings"
	"unicode/utf16"
)

// minSectionLength is measured in UTF-16 code units, so an emoji counts twice.
const minSectionLength = 50

// SplitSections cuts a results listing into one candidate block per numbered
// entry and keeps only blocks that look like grants. Blocks are trimmed and
// returned in reply order.
func SplitSections(text string) []string {
	sections, _ := splitSections(text)
	return sections
}

// splitSections also reports how many non-empty blocks were dropped.
func splitSections(text string) (kept []string, dropped int) {
	for _, raw := range cutAtBoundaries(text) {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !isGrantSection(s) {
			dropped++
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}

func isGrantSection(s string) bool {
	if utf16Len(s) < minSectionLength {
		return false
	}
	if !hasMarkers(s) {
		return false
	}
	return !introPattern.MatchString(s)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// cutAtBoundaries splits before every entry boundary, so each numeral stays
// with the entry it introduces.
func cutAtBoundaries(text string) []string {
	locs := sectionBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	parts := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		if loc[0] > start {
			parts = append(parts, text[start:loc[0]])
		}
		start = loc[0]
	}
	return append(parts, text[start:])
}
