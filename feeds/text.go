package feeds

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML reduces an HTML fragment to its text content with whitespace
// collapsed to single spaces
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}
