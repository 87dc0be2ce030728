// Copyright 2024-2026 Aiku AI

package relay

import (
	"strconv"
)

// Peer identifies a chat either by numeric id or by public username.
type Peer struct {
	ID       int64
	Username string
}

// PeerID returns a numeric peer.
func PeerID(id int64) Peer {
	return Peer{ID: id}
}

// PeerUsername returns a username peer.
func PeerUsername(username string) Peer {
	return Peer{Username: username}
}

func (p Peer) IsZero() bool {
	return p.ID == 0 && p.Username == ""
}

func (p Peer) String() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return strconv.FormatInt(p.ID, 10)
}

// MessageRef points at a single message inside a chat.
type MessageRef struct {
	Peer Peer
	ID   int
}

// Destination is one delivery target. TopicID is zero when the chat has no
// forum topic.
type Destination struct {
	ChatID  int64  `json:"chat_id" msgpack:"id"`
	TopicID int    `json:"topic_id,omitempty" msgpack:"topic_id,omitempty"`
	Name    string `json:"name,omitempty" msgpack:"name,omitempty"`
}

func (d Destination) Peer() Peer {
	return Peer{ID: d.ChatID}
}

func (d Destination) String() string {
	if d.TopicID != 0 {
		return strconv.FormatInt(d.ChatID, 10) + "/" + strconv.Itoa(d.TopicID)
	}
	return strconv.FormatInt(d.ChatID, 10)
}

// MediaKind is the semantic kind of a fetched message.
type MediaKind string

const (
	KindDocument   MediaKind = "document"
	KindVideo      MediaKind = "video"
	KindPhoto      MediaKind = "photo"
	KindAudio      MediaKind = "audio"
	KindVoice      MediaKind = "voice"
	KindVideoNote  MediaKind = "video_note"
	KindSticker    MediaKind = "sticker"
	KindText       MediaKind = "text"
	KindWebPreview MediaKind = "web_preview"
	KindUnknown    MediaKind = "unknown"
)

// attachmentPriority is the order in which attachments are probed.
var attachmentPriority = []MediaKind{
	KindDocument,
	KindVideo,
	KindPhoto,
	KindAudio,
	KindVoice,
	KindVideoNote,
	KindSticker,
}

// HasAttachment reports whether the kind stands for downloadable media.
func (k MediaKind) HasAttachment() bool {
	switch k {
	case KindText, KindWebPreview, KindUnknown, "":
		return false
	default:
		return true
	}
}

// Directly forwardable kinds are sent by reference without a download.
func (k MediaKind) directForward() bool {
	return k == KindVoice || k == KindVideoNote || k == KindSticker
}

// Attachment is what a client exposes about one media item of a message.
type Attachment struct {
	FileName string
	Size     int64
	// FileRef is the client-specific handle used to resend the media
	// without downloading it.
	FileRef string
}

// MediaDescriptor is derived once per fetched message and never mutated.
type MediaDescriptor struct {
	Kind        MediaKind
	DisplayName string
	Size        int64
	FileRef     string
}

// Message is a fetched message as seen by the pipeline.
type Message interface {
	Ref() MessageRef
	// SenderID is the id of the account that posted the message, or zero.
	SenderID() int64
	IsService() bool
	IsEmpty() bool
	IsWebPreview() bool
	Text() FormattedText
	Caption() FormattedText
	Attachment(kind MediaKind) (Attachment, bool)
}

// FormattedText is a message body with an optional HTML rendering of its
// entities.
type FormattedText struct {
	Body string
	HTML string
}

// Markdown returns the body in markdown, converting the HTML rendering when
// one is present.
func (t FormattedText) Markdown() string {
	if t.HTML == "" {
		return t.Body
	}
	return htmlToMarkdown(t.Body, t.HTML)
}

// StatusRef is the editable status message shown to the requester.
type StatusRef = MessageRef

// Request is one relay invocation.
type Request struct {
	UserID int64
	Status StatusRef
	// Reference is a raw message link. Ignored when Forwarded is set.
	Reference string
	// Forwarded is a handle to an already known source message.
	Forwarded *MessageRef
	// Offset is added to numeric message ids for batch ranges.
	Offset int
	// TriggerChatID is the chat the command was issued in.
	TriggerChatID int64
	// Fetcher is the requester's own session used to read the source. The
	// primary client is used when nil.
	Fetcher Fetcher
}

// Outcome is the terminal state of a relay request.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeForwarded    Outcome = "forwarded"
	OutcomeHandled      Outcome = "handled"
	OutcomeRejected     Outcome = "rejected"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeAccessDenied Outcome = "access_denied"
	OutcomeFailed       Outcome = "failed"
)
