// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"testing"
)

func TestExpandTemplateFileNameAndSize(t *testing.T) {
	t.Parallel()
	desc := MediaDescriptor{Kind: KindVideo, DisplayName: "movie.mkv", Size: 1_500_000_000}
	got := ExpandTemplate("{file_name} | {file_size}", "", desc)
	if got != "movie.mkv | 1.40 GB" {
		t.Errorf("ExpandTemplate: got %q, want %q", got, "movie.mkv | 1.40 GB")
	}
}

func TestExpandTemplateDefaults(t *testing.T) {
	t.Parallel()
	got := ExpandTemplate("{filename} {size} {media_type} {unknown}", "", MediaDescriptor{})
	want := "Unknown Unknown Unknown {unknown}"
	if got != want {
		t.Errorf("ExpandTemplate: got %q, want %q", got, want)
	}
}

func TestExpandTemplateCaptionToken(t *testing.T) {
	t.Parallel()
	got := ExpandTemplate("[{caption}] {type}", "orig", MediaDescriptor{Kind: KindAudio})
	if got != "[orig] audio" {
		t.Errorf("ExpandTemplate: got %q, want %q", got, "[orig] audio")
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size int64
		want string
	}{
		{0, "Unknown"},
		{-5, "Unknown"},
		{mib, "1.00 MB"},
		{gib - 1, "1024.00 MB"},
		{gib, "1.00 GB"},
		{5 * gib / 2, "2.50 GB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d): got %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestRemoveDeleteWordsIdempotent(t *testing.T) {
	t.Parallel()
	words := []string{"ab", "x"}
	once := RemoveDeleteWords("aaxbb tail", words)
	twice := RemoveDeleteWords(once, words)
	if once != twice {
		t.Errorf("second pass changed text: %q -> %q", once, twice)
	}
	if once != " tail" {
		t.Errorf("RemoveDeleteWords: got %q, want %q", once, " tail")
	}
}

func TestRemoveDeleteWordsIgnoresEmpty(t *testing.T) {
	t.Parallel()
	if got := RemoveDeleteWords("keep", []string{""}); got != "keep" {
		t.Errorf("RemoveDeleteWords: got %q, want %q", got, "keep")
	}
}

func TestApplyReplacementsSortedOrder(t *testing.T) {
	t.Parallel()
	// "a" is replaced before "b", so the "b" produced by it is replaced too.
	got := ApplyReplacements("a", map[string]string{"a": "b", "b": "c"})
	if got != "c" {
		t.Errorf("ApplyReplacements: got %q, want %q", got, "c")
	}
}

func TestRenderCaption(t *testing.T) {
	t.Parallel()
	desc := MediaDescriptor{Kind: KindDocument, DisplayName: "a.pdf", Size: mib}
	tests := []struct {
		name     string
		original string
		cc       CaptionContext
		want     string
	}{
		{"empty", "", CaptionContext{}, ""},
		{"original only", "  hello  ", CaptionContext{}, "hello"},
		{"template only", "", CaptionContext{Template: "{file_name}"}, "a.pdf"},
		{"both", "hello", CaptionContext{Template: "{file_size}"}, "hello\n\n1.00 MB"},
		{
			"rules",
			"buy now cheap",
			CaptionContext{DeleteWords: []string{"buy now"}, Replacements: map[string]string{"cheap": "free"}},
			"free",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RenderCaption(tt.original, tt.cc, desc); got != tt.want {
				t.Errorf("RenderCaption: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderEmphasizedCaption(t *testing.T) {
	t.Parallel()
	desc := MediaDescriptor{Kind: KindPhoto}
	got := RenderEmphasizedCaption("orig", CaptionContext{Template: "by {type}"}, desc)
	if got != "orig\n\n__**by photo**__" {
		t.Errorf("RenderEmphasizedCaption: got %q", got)
	}
	if got := RenderEmphasizedCaption("orig", CaptionContext{}, desc); got != "orig" {
		t.Errorf("without template: got %q, want %q", got, "orig")
	}
}

func TestPartCaption(t *testing.T) {
	t.Parallel()
	if got := partCaption("", 2); got != "**Part: 2**" {
		t.Errorf("partCaption empty: got %q", got)
	}
	if got := partCaption("cap", 1); got != "cap\n\n**Part: 1**" {
		t.Errorf("partCaption: got %q", got)
	}
}

func TestCaptionContextSessionOverride(t *testing.T) {
	t.Parallel()
	te := newTestEngine(t, nil)
	te.store.values[valueKey(testUserID, PrefCustomCaption)] = "stored"
	te.store.values[valueKey(testUserID, PrefReplacements)] = map[string]string{"a": "b"}

	cc := te.captionContext(context.Background(), testUserID)
	if cc.Template != "stored" || cc.Replacements["a"] != "b" {
		t.Errorf("stored context: got %+v", cc)
	}
	te.Sessions().SetCaptionTemplate(testUserID, "session")
	if cc := te.captionContext(context.Background(), testUserID); cc.Template != "session" {
		t.Errorf("session override: got %q, want %q", cc.Template, "session")
	}
}
