package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	markupPattern     = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanText reduces article content to plain text. Content without markup
// is returned unchanged apart from whitespace folding.
func cleanText(content string) string {
	if !markupPattern.MatchString(content) {
		return foldSpace(content)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return foldSpace(content)
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	// Block elements would otherwise glue sentences together.
	doc.Find("p, br, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return foldSpace(doc.Text())
}

func foldSpace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
