package adapters

import (
	"strings"
	"unicode/utf8"
)

const (
	twitterMaxChars = 280
	// t.co wraps every link to this length regardless of the original URL.
	twitterLinkChars = 23
	blueskyMaxChars  = 300
)

// joinText appends url to the trimmed comment with a single space.
func joinText(text, url string) string {
	text = strings.TrimSpace(text)
	if url == "" {
		return text
	}
	return strings.TrimSpace(text + " " + url)
}

// composeLimited fits comment and url into maxChars runes, reserving linkChars for the url plus a
// separator. The url is never cut; when no comment characters remain the result is the bare url.
func composeLimited(text, url string, maxChars, linkChars int) string {
	text = collapseSpace(text)
	if url == "" {
		return truncate(text, maxChars)
	}
	budget := maxChars - 1 - linkChars
	if budget < 0 {
		budget = 0
	}
	trimmed := truncate(text, budget)
	if trimmed == "" {
		return url
	}
	return trimmed + " " + url
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return strings.TrimRight(string(runes[:maxChars-3]), " \t\n") + "..."
}
