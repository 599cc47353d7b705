package grants

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	isoDateRegex   = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	usDateRegex    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthNameRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept?|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayMonthRegex  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(20\d{2})\b`)
	parenRegex     = regexp.MustCompile(`\([^)]*\)`)
)

// parseDate reads the free-text dates the model writes ("March 15, 2026",
// "2026-03-15", "03/15/2026 (5:00 PM ET)"). Date-only values resolve to the
// end of that day in UTC. Placeholders such as "Rolling" or "TBD" fail.
func parseDate(text string) (time.Time, error) {
	text = cleanDateString(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}

	formats := []string{
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"02 January 2006",
		"2 Jan 2006",
		"01/02/2006",
		"1/2/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, text); err == nil {
			return toEndOfDay(t), nil
		}
	}

	if t := parseDateWithRegex(text); !t.IsZero() {
		return toEndOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// parseDateWithRegex finds a date embedded in longer text, e.g.
// "Applications due by April 1, 2026 at 11:59 PM".
func parseDateWithRegex(text string) time.Time {
	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}

	if m := usDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])); err == nil {
			return t
		}
	}

	if m := monthNameRegex.FindStringSubmatch(text); len(m) == 4 {
		// time.Parse matches month names case-insensitively.
		month := m[1][:3]
		if t, err := time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", month, m[2], m[3])); err == nil {
			return t
		}
	}

	if m := dayMonthRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("2 January 2006", fmt.Sprintf("%s %s %s", m[1], m[2], m[3])); err == nil {
			return t
		}
	}

	return time.Time{}
}

// cleanDateString drops label prefixes and parenthesised time zones.
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Due date:", "Posted:", "Posted date:",
		"Applications due:", "Expires:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	s = parenRegex.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
