// Copyright 2024-2026 Aiku AI

// Package markup converts between the markdown dialect used in relay captions
// and the HTML subset understood by the delivery platform.
package markup

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// ParsedMessage holds the result of converting caption markdown to HTML.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
}

// HTML returns the formatted body, or the escaped plain body when the text
// had no formatting.
func (p *ParsedMessage) HTML() string {
	if p.Format == event.FormatHTML {
		return p.FormattedBody
	}
	return html.EscapeString(p.Body)
}

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underItalRe  = regexp.MustCompile(`__(.+?)__`)
	italicRe     = regexp.MustCompile(`(^|[\s(>])_([^_\n]+?)_($|[\s).,!?:;<])`)
	starItalRe   = regexp.MustCompile(`(^|[\s(>])\*([^*\n]+?)\*($|[\s).,!?:;<])`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	spoilerRe    = regexp.MustCompile(`\|\|(.+?)\|\|`)
	codeRe       = regexp.MustCompile("`([^`\n]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	blockquoteRe = regexp.MustCompile(`^>\s?(.*)$`)
)

type codeBlock struct {
	lang    string
	content string
}

func placeholder(kind string, idx int) string {
	return "\x00" + kind + strconv.Itoa(idx) + "\x00"
}

// Parse converts caption markdown to platform HTML.
func Parse(text string) *ParsedMessage {
	if text == "" {
		return &ParsedMessage{}
	}

	hasFormatting := boldRe.MatchString(text) ||
		underItalRe.MatchString(text) ||
		italicRe.MatchString(text) ||
		starItalRe.MatchString(text) ||
		strikeRe.MatchString(text) ||
		spoilerRe.MatchString(text) ||
		codeRe.MatchString(text) ||
		codeBlockRe.MatchString(text) ||
		linkRe.MatchString(text) ||
		strings.HasPrefix(text, ">") ||
		strings.Contains(text, "\n>")

	if !hasFormatting {
		return &ParsedMessage{Body: text}
	}

	// Code is pulled out first so inline rules never touch it.
	var blocks []codeBlock
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		blocks = append(blocks, codeBlock{lang: parts[1], content: parts[2]})
		return placeholder("CODEBLOCK", len(blocks)-1)
	})
	var spans []string
	processed = codeRe.ReplaceAllStringFunc(processed, func(match string) string {
		spans = append(spans, codeRe.FindStringSubmatch(match)[1])
		return placeholder("CODESPAN", len(spans)-1)
	})

	// Consecutive quoted lines become one blockquote.
	lines := strings.Split(processed, "\n")
	var result, quote []string
	flushQuote := func() {
		if len(quote) == 0 {
			return
		}
		result = append(result, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
		quote = nil
	}
	for _, line := range lines {
		if m := blockquoteRe.FindStringSubmatch(line); m != nil {
			quote = append(quote, html.EscapeString(m[1]))
			continue
		}
		flushQuote()
		result = append(result, html.EscapeString(line))
	}
	flushQuote()
	formatted := strings.Join(result, "\n")

	formatted = boldRe.ReplaceAllString(formatted, "<b>$1</b>")
	formatted = underItalRe.ReplaceAllString(formatted, "<i>$1</i>")
	formatted = italicRe.ReplaceAllString(formatted, "$1<i>$2</i>$3")
	formatted = starItalRe.ReplaceAllString(formatted, "$1<i>$2</i>$3")
	formatted = strikeRe.ReplaceAllString(formatted, "<s>$1</s>")
	formatted = spoilerRe.ReplaceAllString(formatted, "<tg-spoiler>$1</tg-spoiler>")

	formatted = linkRe.ReplaceAllStringFunc(formatted, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := parts[1], parts[2]
		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
			strings.HasPrefix(lower, "tg://") || strings.HasPrefix(lower, "mailto:") {
			return `<a href="` + href + `">` + label + `</a>`
		}
		return label
	})

	for i, span := range spans {
		formatted = strings.Replace(formatted, placeholder("CODESPAN", i), "<code>"+html.EscapeString(span)+"</code>", 1)
	}
	for i, cb := range blocks {
		var replacement string
		if cb.lang != "" {
			replacement = `<pre><code class="language-` + html.EscapeString(cb.lang) + `">` + html.EscapeString(cb.content) + `</code></pre>`
		} else {
			replacement = `<pre>` + html.EscapeString(cb.content) + `</pre>`
		}
		formatted = strings.Replace(formatted, placeholder("CODEBLOCK", i), replacement, 1)
	}

	return &ParsedMessage{
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}
