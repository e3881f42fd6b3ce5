package xtream

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// htmlPage reports whether body is an HTML document rather than JSON, and
// returns its title. Panels behind Cloudflare or a misconfigured proxy answer
// player_api.php with 200 and an HTML page.
func htmlPage(body []byte) (title string, ok bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return "", false
	}
	z := html.NewTokenizer(bytes.NewReader(trimmed))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(title), true
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				return strings.TrimSpace(title), true
			}
			inTitle = false
		case html.TextToken:
			if inTitle {
				title += string(z.Text())
			}
		}
	}
}

// cloudflareTitle reports whether title is one of Cloudflare's challenge pages.
func cloudflareTitle(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "just a moment") ||
		strings.Contains(t, "attention required") ||
		strings.Contains(t, "cloudflare")
}
