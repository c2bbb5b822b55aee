package thread

import (
	"fmt"
	"regexp"
	"strings"

	"threadsmith/internal/model"
)

// RenderText renders a thread as plain numbered blocks, the form fed to the
// summarizer.
func RenderText(posts []model.Post) string {
	if len(posts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(posts))
	for i, p := range posts {
		parts = append(parts, fmt.Sprintf("Tweet %d:\n%s", i+1, p.Text))
	}
	return strings.Join(parts, "\n\n")
}

// RenderClean renders a thread as content-only markdown: no timestamps, no
// IDs. Single posts get no numbering; longer threads get **i/** markers.
func RenderClean(posts []model.Post, authorUsername string) string {
	if len(posts) == 0 {
		return ""
	}
	var parts []string
	if authorUsername != "" {
		parts = append(parts, fmt.Sprintf("# Thread by @%s\n", authorUsername))
	}
	for i, p := range posts {
		text := strings.TrimSpace(p.Text)
		if len(posts) > 1 {
			parts = append(parts, fmt.Sprintf("**%d/**\n%s", i+1, text))
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

var statusURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`twitter\.com/\w+/status/(\d+)`),
	regexp.MustCompile(`x\.com/\w+/status/(\d+)`),
	regexp.MustCompile(`twitter\.com/i/web/status/(\d+)`),
	regexp.MustCompile(`x\.com/i/web/status/(\d+)`),
}

var allDigits = regexp.MustCompile(`^\d+$`)

// ExtractTweetID pulls the tweet ID out of a twitter.com/x.com status URL,
// or passes through a bare numeric ID. Empty string if nothing matches.
func ExtractTweetID(raw string) string {
	for _, p := range statusURLPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	if allDigits.MatchString(raw) {
		return raw
	}
	return ""
}
