package drafting

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/david/grantmate/internal/models"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// RenderHTML converts section markdown into sanitized HTML.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// PlainText flattens rendered HTML into one line per block element.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, sel *goquery.Selection) {
		if sel.ParentsFiltered("li, td").Length() > 0 && goquery.NodeName(sel) == "p" {
			return
		}
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(sel) == "li" {
			text = "- " + text
		}
		lines = append(lines, text)
	})
	return strings.Join(lines, "\n"), nil
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Document assembles an application's sections into one markdown document,
// ordered by position.
func Document(app models.Application) string {
	sections := make([]models.DraftSection, len(app.Sections))
	copy(sections, app.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Position < sections[j].Position })

	var b strings.Builder
	b.WriteString("# " + app.Title + "\n")
	if app.GrantTitle != "" {
		b.WriteString("\n_Grant: " + app.GrantTitle + "_\n")
	}
	for _, s := range sections {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		title := s.SectionType
		if sec, _, err := LookupSection(s.SectionType); err == nil {
			title = sec.Title
		}
		b.WriteString("\n## " + title + "\n\n")
		b.WriteString(strings.TrimSpace(s.Content))
		b.WriteString("\n")
	}
	return b.String()
}

type ExportFormat string

const (
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
	FormatText     ExportFormat = "text"
)

// Export renders an application in the requested format and returns the
// content type alongside the body.
func Export(app models.Application, format ExportFormat) (body, contentType string, err error) {
	md := Document(app)
	switch format {
	case FormatMarkdown, "":
		return md, "text/markdown; charset=utf-8", nil
	case FormatHTML:
		html, err := RenderHTML(md)
		return html, "text/html; charset=utf-8", err
	case FormatText:
		html, err := RenderHTML(md)
		if err != nil {
			return "", "", err
		}
		text, err := PlainText(html)
		return text, "text/plain; charset=utf-8", err
	}
	return "", "", fmt.Errorf("unsupported export format %q", format)
}
