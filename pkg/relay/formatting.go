// Copyright 2024-2026 Aiku AI

package relay

import (
	"github.com/aiku/relaybot/pkg/relay/markup"
)

// captionHTML converts caption markdown to the HTML accepted by the
// secondary client.
func captionHTML(text string) string {
	if text == "" {
		return ""
	}
	return markup.Parse(text).HTML()
}

// htmlToMarkdown converts an HTML-rendered body to caption markdown.
func htmlToMarkdown(body, html string) string {
	return markup.ToMarkdown(body, html)
}
