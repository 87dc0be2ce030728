// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// CaptionContext holds the per-user caption rules.
type CaptionContext struct {
	DeleteWords  []string
	Replacements map[string]string
	Template     string
}

// RemoveDeleteWords removes every occurrence of the given words. Removal is
// repeated until no word is left so that applying it twice is a no-op.
func RemoveDeleteWords(text string, words []string) string {
	for {
		changed := false
		for _, word := range words {
			if word == "" || !strings.Contains(text, word) {
				continue
			}
			text = strings.ReplaceAll(text, word, "")
			changed = true
		}
		if !changed {
			return text
		}
	}
}

// ApplyReplacements applies every old→new pair in key order.
func ApplyReplacements(text string, replacements map[string]string) string {
	keys := lo.Keys(replacements)
	slices.Sort(keys)
	for _, old := range keys {
		if old == "" {
			continue
		}
		text = strings.ReplaceAll(text, old, replacements[old])
	}
	return text
}

// FormatFileSize renders a byte count as GB from 1 GiB upward, MB below.
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "Unknown"
	}
	if size >= gib {
		return fmt.Sprintf("%.2f GB", float64(size)/gib)
	}
	return fmt.Sprintf("%.2f MB", float64(size)/mib)
}

// ExpandTemplate substitutes the recognized placeholders. Unknown
// placeholders are left untouched.
func ExpandTemplate(template, processed string, desc MediaDescriptor) string {
	name := desc.DisplayName
	if name == "" {
		name = "Unknown"
	}
	kind := string(desc.Kind)
	if kind == "" {
		kind = "Unknown"
	}
	size := FormatFileSize(desc.Size)
	return strings.NewReplacer(
		"{file_name}", name,
		"{filename}", name,
		"{file_size}", size,
		"{filesize}", size,
		"{size}", size,
		"{caption}", processed,
		"{type}", kind,
		"{media_type}", kind,
	).Replace(template)
}

func processCaption(original string, cc CaptionContext) string {
	text := RemoveDeleteWords(original, cc.DeleteWords)
	text = ApplyReplacements(text, cc.Replacements)
	return strings.TrimSpace(text)
}

// RenderCaption produces the final caption: the processed original followed
// by the expanded template. An empty result means no caption.
func RenderCaption(original string, cc CaptionContext, desc MediaDescriptor) string {
	processed := processCaption(original, cc)
	var expanded string
	if cc.Template != "" {
		expanded = strings.TrimSpace(ExpandTemplate(cc.Template, processed, desc))
	}
	switch {
	case processed != "" && expanded != "":
		return processed + "\n\n" + expanded
	case expanded != "":
		return expanded
	default:
		return processed
	}
}

// RenderEmphasizedCaption is the public-copy rendering: the expanded
// template is wrapped in bold italic markers instead of being appended as
// plain text.
func RenderEmphasizedCaption(original string, cc CaptionContext, desc MediaDescriptor) string {
	processed := processCaption(original, cc)
	var expanded string
	if cc.Template != "" {
		expanded = strings.TrimSpace(ExpandTemplate(cc.Template, processed, desc))
	}
	if expanded == "" {
		return processed
	}
	emphasized := "__**" + expanded + "**__"
	if processed == "" {
		return emphasized
	}
	return processed + "\n\n" + emphasized
}

// partCaption suffixes a caption with the part number of a split upload.
func partCaption(caption string, number int) string {
	if caption == "" {
		return fmt.Sprintf("**Part: %d**", number)
	}
	return fmt.Sprintf("%s\n\n**Part: %d**", caption, number)
}

// captionContext merges stored caption rules with the session override.
func (e *Engine) captionContext(ctx context.Context, userID int64) CaptionContext {
	var cc CaptionContext
	if e.store != nil {
		log := zerolog.Ctx(ctx)
		if _, err := e.store.GetUserValue(ctx, userID, PrefDeleteWords, &cc.DeleteWords); err != nil {
			log.Warn().Err(err).Msg("Failed to load delete words")
		}
		if _, err := e.store.GetUserValue(ctx, userID, PrefReplacements, &cc.Replacements); err != nil {
			log.Warn().Err(err).Msg("Failed to load replacement words")
		}
		if _, err := e.store.GetUserValue(ctx, userID, PrefCustomCaption, &cc.Template); err != nil {
			log.Warn().Err(err).Msg("Failed to load custom caption")
		}
	}
	if tmpl, ok := e.sessions.CaptionTemplate(userID); ok {
		cc.Template = tmpl
	}
	return cc
}
