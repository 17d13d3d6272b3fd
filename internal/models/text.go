// ABOUTME: Plain-text extraction from the HTML post bodies servers return.
// ABOUTME: Good enough for terminal output; not a faithful renderer.
package models

import (
	"html"
	"regexp"
	"strings"
)

var (
	breakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>\s*<p[^>]*>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
)

// PlainText strips tags from an HTML fragment and unescapes entities.
// Line breaks and paragraph boundaries become newlines.
func PlainText(s string) string {
	s = breakTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// Text returns the post body as plain text, with the content warning first
// when there is one. Boosts show the boosted post.
func (p *Post) Text() string {
	t := p.Target()
	body := PlainText(t.Content)
	if t.SpoilerText != "" {
		body = "[CW: " + t.SpoilerText + "] " + body
	}
	return body
}
