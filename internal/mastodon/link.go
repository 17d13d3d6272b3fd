// ABOUTME: Parses RFC 8288 Link headers for next-page tokens.
// ABOUTME: Follower and following lists page through the rel="next" max_id.
package mastodon

import (
	"net/http"
	"net/url"
	"strings"
)

// nextPageToken returns the max_id of the rel="next" link, or "" when there is none.
func nextPageToken(h http.Header) string {
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
			if !ok || !isNextRel(params) {
				continue
			}
			target = strings.TrimSpace(target)
			target = strings.TrimPrefix(target, "<")
			target = strings.TrimSuffix(target, ">")
			u, err := url.Parse(target)
			if err != nil {
				continue
			}
			return u.Query().Get("max_id")
		}
	}
	return ""
}

func isNextRel(params string) bool {
	for _, p := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
			if rel == "next" {
				return true
			}
		}
	}
	return false
}
