// Copyright 2024-2026 Aiku AI

package relay

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// defaultNames are used when an attachment carries no file name.
var defaultNames = map[MediaKind]string{
	KindDocument:  "document",
	KindVideo:     "video.mp4",
	KindPhoto:     "photo.jpg",
	KindAudio:     "audio.mp3",
	KindVoice:     "voice.ogg",
	KindVideoNote: "video_note.mp4",
	KindSticker:   "sticker.webp",
}

// Classify derives the media descriptor of a fetched message. Attachments
// are probed in priority order; messages without one are classified as web
// preview, text or unknown.
func Classify(msg Message) MediaDescriptor {
	for _, kind := range attachmentPriority {
		att, ok := msg.Attachment(kind)
		if !ok {
			continue
		}
		name := att.FileName
		if name == "" {
			name = defaultNames[kind]
		}
		return MediaDescriptor{
			Kind:        kind,
			DisplayName: name,
			Size:        att.Size,
			FileRef:     att.FileRef,
		}
	}
	switch {
	case msg.IsWebPreview():
		return MediaDescriptor{Kind: KindWebPreview}
	case strings.TrimSpace(msg.Text().Body) != "":
		return MediaDescriptor{Kind: KindText}
	default:
		return MediaDescriptor{Kind: KindUnknown, DisplayName: "unknown", Size: 1}
	}
}

var extensionKinds = map[string]MediaKind{}

func init() {
	for _, ext := range []string{"mp4", "mov", "avi", "mkv", "flv", "wmv", "webm", "mpg", "mpeg", "3gp", "ts", "m4v", "f4v", "vob"} {
		extensionKinds["."+ext] = KindVideo
	}
	for _, ext := range []string{"jpg", "jpeg", "png", "webp"} {
		extensionKinds["."+ext] = KindPhoto
	}
	for _, ext := range []string{"mp3", "wav", "flac", "aac", "m4a", "ogg"} {
		extensionKinds["."+ext] = KindAudio
	}
	for _, ext := range []string{"pdf", "docx", "txt", "epub"} {
		extensionKinds["."+ext] = KindDocument
	}
}

// deliveryKind picks the typed send used for an artifact. Video, photo and
// audio descriptors keep their kind; anything else is promoted by file
// extension, then by sniffed content, and defaults to document.
func deliveryKind(desc MediaDescriptor, path string) MediaKind {
	switch desc.Kind {
	case KindVideo, KindPhoto, KindAudio:
		return desc.Kind
	}
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return KindDocument
	}
	return kindFromMIME(mtype.String())
}

func kindFromMIME(mimeType string) MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "image/jpeg"), strings.HasPrefix(mimeType, "image/png"), strings.HasPrefix(mimeType, "image/webp"):
		return KindPhoto
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}
