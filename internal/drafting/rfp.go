package drafting

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	rpdf "rsc.io/pdf"
)

// MaxGuidanceRunes caps how much RFP text is stored and sent with prompts.
const MaxGuidanceRunes = 8000

var ErrEmptyDocument = errors.New("document contains no extractable text")

// ExtractPDFText pulls the text layer out of an uploaded RFP.
func ExtractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// FunderGuidance normalizes extracted RFP text for storage on an application.
func FunderGuidance(raw string) (string, error) {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	text := strings.Join(kept, "\n")
	if text == "" {
		return "", ErrEmptyDocument
	}
	return truncateRunes(text, MaxGuidanceRunes), nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
