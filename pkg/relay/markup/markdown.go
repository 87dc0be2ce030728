// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package markup

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlBoldRe       = regexp.MustCompile(`(?s)<(?:b|strong)>(.*?)</(?:b|strong)>`)
	htmlItalicRe     = regexp.MustCompile(`(?s)<(?:i|em)>(.*?)</(?:i|em)>`)
	htmlStrikeRe     = regexp.MustCompile(`(?s)<(?:s|del|strike)>(.*?)</(?:s|del|strike)>`)
	htmlSpoilerRe    = regexp.MustCompile(`(?s)<(?:tg-spoiler|span class="tg-spoiler")>(.*?)</(?:tg-spoiler|span)>`)
	htmlCodeRe       = regexp.MustCompile(`(?s)<code[^>]*>(.*?)</code>`)
	htmlPreRe        = regexp.MustCompile(`(?s)<pre>(?:<code[^>]*>)?(.*?)(?:</code>)?</pre>`)
	htmlLinkRe       = regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlBrRe         = regexp.MustCompile(`<br\s*/?>`)
	htmlBlockquoteRe = regexp.MustCompile(`(?s)<blockquote[^>]*>(.*?)</blockquote>`)
	htmlTagRe        = regexp.MustCompile(`<[^>]+>`)
)

// ToMarkdown converts an HTML-rendered message body back to caption
// markdown. body is returned unchanged when htmlText is empty.
func ToMarkdown(body, htmlText string) string {
	if htmlText == "" {
		return body
	}

	text := htmlPreRe.ReplaceAllString(htmlText, "```\n$1\n```")
	text = htmlCodeRe.ReplaceAllString(text, "`$1`")

	text = htmlBoldRe.ReplaceAllString(text, "**$1**")
	text = htmlItalicRe.ReplaceAllString(text, "__${1}__")
	text = htmlStrikeRe.ReplaceAllString(text, "~~$1~~")
	text = htmlSpoilerRe.ReplaceAllString(text, "||$1||")

	text = htmlLinkRe.ReplaceAllString(text, "[$2]($1)")

	text = htmlBlockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := htmlBlockquoteRe.FindStringSubmatch(match)
		lines := strings.Split(strings.TrimSpace(parts[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n")
	})

	text = htmlBrRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")

	return strings.TrimSpace(html.UnescapeString(text))
}
