package grants

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// amountRegex captures an optional currency symbol, the number, an
	// optional magnitude word and an optional trailing currency code.
	amountRegex = regexp.MustCompile(`(?i)(c\$|ca\$|us\$|[$£€])?\s*(\d[\d,]*(?:\.\d+)?)(?:\s*(billion|million|thousand|bn|[mk])\b)?(?:\s*(usd|gbp|eur|cad)\b)?`)

	currencyCodeRegex = regexp.MustCompile(`(?i)\b(usd|gbp|eur|cad)\b`)

	// rangeSeparator joins the two ends of "$10,000 - 50,000".
	rangeSeparator = regexp.MustCompile(`^\s*(?:-|–|—|to)\s*$`)
)

// detectCurrency picks the currency named in text. Symbols and whole-word
// codes count; letters inside ordinary words do not.
func detectCurrency(textLower, fallback string) string {
	switch {
	case strings.Contains(textLower, "c$"):
		return "CAD"
	case strings.Contains(textLower, "£"):
		return "GBP"
	case strings.Contains(textLower, "€"):
		return "EUR"
	}
	if m := currencyCodeRegex.FindStringSubmatch(textLower); m != nil {
		return strings.ToUpper(m[1])
	}
	if strings.Contains(textLower, "$") || strings.Contains(textLower, "dollar") {
		return "USD"
	}
	return fallback
}

// parseAmount extracts min/max amounts and currency from a funding string
// such as "$500,000", "Up to $2.5 million" or "$10,000 - $50,000". A single
// amount is a maximum unless the text says it is a minimum.
//
// Only money counts: a number needs a currency symbol, a magnitude word or a
// currency code, or must close a range opened by one. Years and award counts
// are ignored.
func parseAmount(text string, defaultCurrency string) (float64, float64, string) {
	textLower := strings.ToLower(text)

	currency := defaultCurrency
	if currency == "" {
		currency = "USD"
	}
	currency = detectCurrency(textLower, currency)

	var amounts []float64
	prevEnd := -1
	for _, idx := range amountRegex.FindAllStringSubmatchIndex(text, -1) {
		group := func(n int) string {
			if idx[2*n] < 0 {
				return ""
			}
			return text[idx[2*n]:idx[2*n+1]]
		}
		symbol, number, magnitude, code := group(1), group(2), group(3), group(4)

		qualified := symbol != "" || magnitude != "" || code != ""
		if !qualified {
			if prevEnd < 0 || !rangeSeparator.MatchString(text[prevEnd:idx[0]]) {
				continue
			}
		}

		val, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
		if err != nil || val <= 0 {
			continue
		}
		switch strings.ToLower(magnitude) {
		case "billion", "bn":
			val *= 1e9
		case "million", "m":
			val *= 1e6
		case "thousand", "k":
			val *= 1e3
		}
		amounts = append(amounts, val)
		prevEnd = idx[1]
	}

	if len(amounts) == 0 {
		return 0, 0, ""
	}

	if len(amounts) == 1 {
		if strings.Contains(textLower, "minimum") || strings.Contains(textLower, "at least") {
			return amounts[0], 0, currency
		}
		return 0, amounts[0], currency
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	if min == max {
		return 0, max, currency
	}
	return min, max, currency
}
