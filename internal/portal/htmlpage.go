package portal

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxPageSummary = 120

// pageSummary returns a short description of an HTML page the portal served
// instead of a PDF, usually its error banner. It returns "" when nothing useful
// can be found.
func pageSummary(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range []string{"title", "h1", "h2", ".error", "body"} {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > maxPageSummary {
			text = string(r[:maxPageSummary])
		}
		return text
	}
	return ""
}
