// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"time"
)

// ProgressFunc receives cumulative byte counts during a transfer.
type ProgressFunc func(ctx context.Context, done, total int64)

// ParseMode tells a client how to interpret a caption.
type ParseMode string

const (
	ParseMarkdown ParseMode = "markdown"
	ParseHTML     ParseMode = "html"
)

// VideoMeta is the optional metadata attached to video sends.
type VideoMeta struct {
	Duration time.Duration
	Width    int
	Height   int
}

// Button is an inline link button attached to a copied message.
type Button struct {
	Text string
	URL  string
}

// SendOptions configures a typed media send. Progress may be nil.
type SendOptions struct {
	Caption   string
	ParseMode ParseMode
	Thumbnail string
	Video     *VideoMeta
	Progress  ProgressFunc
	// Protect disables forwarding and saving on the sent message.
	Protect bool
}

// CopyOptions configures a copy-to-destination call.
type CopyOptions struct {
	// Protect disables forwarding and saving on the copy.
	Protect bool
	Button  *Button
}

// ChatInfo is the metadata returned by a chat lookup.
type ChatInfo struct {
	ID    int64
	Title string
}

// UploadedFile is a file stored on the platform by a generic upload and not
// yet attached to a message.
type UploadedFile struct {
	Name   string
	Size   int64
	Handle any
}

// Story is a fetched story. Kind is KindUnknown when it carries no media.
type Story struct {
	ID     int
	Peer   Peer
	Kind   MediaKind
	Handle any
}

// Fetcher reads source messages and downloads their attachments.
type Fetcher interface {
	// GetMessage returns ErrNotFound (or a nil message) when the message
	// does not exist.
	GetMessage(ctx context.Context, peer Peer, id int) (Message, error)
	// Download stores the message attachment inside dir and returns the
	// path of the written file.
	Download(ctx context.Context, msg Message, dir string, progress ProgressFunc) (string, error)
}

// MessageEditor edits and deletes messages sent by the client.
type MessageEditor interface {
	EditText(ctx context.Context, ref MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// PrimaryClient is the bot-side client that owns status messages and
// performs typed sends.
type PrimaryClient interface {
	Fetcher
	MessageEditor
	GetChat(ctx context.Context, peer Peer) (*ChatInfo, error)
	SendText(ctx context.Context, to Destination, text string) (MessageRef, error)
	SendMedia(ctx context.Context, to Destination, kind MediaKind, path string, opts SendOptions) (MessageRef, error)
	SendByReference(ctx context.Context, to Destination, kind MediaKind, fileRef, caption string) (MessageRef, error)
	CopyMessage(ctx context.Context, to Destination, from MessageRef, opts CopyOptions) (MessageRef, error)
}

// SecondaryClient is the optional account-side client with resumable
// uploads, stories and username resolution.
type SecondaryClient interface {
	Fetcher
	MessageEditor
	SendText(ctx context.Context, to Destination, text string) (MessageRef, error)
	UploadFile(ctx context.Context, path string, progress ProgressFunc) (*UploadedFile, error)
	SendUploaded(ctx context.Context, to Destination, file *UploadedFile, kind MediaKind, opts SendOptions) (MessageRef, error)
	GetStory(ctx context.Context, peer Peer, id int) (*Story, error)
	DownloadStory(ctx context.Context, story *Story, dir string, progress ProgressFunc) (string, error)
	ResolveUsername(ctx context.Context, username string) (int64, error)
	JoinChat(ctx context.Context, username string) error
}

// PrivilegedClient sends files above the standard size ceiling.
type PrivilegedClient interface {
	SendMedia(ctx context.Context, to Destination, kind MediaKind, path string, opts SendOptions) (MessageRef, error)
}

// EntitlementChecker answers whether a requester is on the free tier.
type EntitlementChecker interface {
	IsFreeTier(ctx context.Context, sourceID, userID int64) (bool, error)
}

// OpsReporter posts operational errors to an operator channel.
type OpsReporter interface {
	Report(ctx context.Context, text string) error
}

// Preference keys.
const (
	PrefDeleteWords   = "delete_words"
	PrefReplacements  = "replacement_words"
	PrefCustomCaption = "custom_caption"
	PrefUploadType    = "upload_type"
	PrefUploadMethod  = "upload_method"
	PrefDestinations  = "channels"
)

// Preference values.
const (
	UploadTypeMedia    = "media"
	UploadTypeDocument = "document"

	UploadMethodStandard = "standard"
	UploadMethodStream   = "stream"
)

// PreferenceStore is the per-user key/value settings store.
type PreferenceStore interface {
	// GetUserValue decodes the stored value into out and reports whether it
	// was present. out is left untouched when absent, so callers preload
	// their default.
	GetUserValue(ctx context.Context, userID int64, key string, out any) (bool, error)
	SetUserValue(ctx context.Context, userID int64, key string, value any) error
	GetDestinations(ctx context.Context, userID int64) ([]Destination, error)
	AddDestination(ctx context.Context, userID int64, dest Destination) (bool, error)
	RemoveDestination(ctx context.Context, userID int64, chatID int64) (bool, error)
	ListProtectedSources(ctx context.Context) (map[int64]struct{}, error)
	LockSource(ctx context.Context, sourceID int64) error
	ResetUserPreferences(ctx context.Context, userID int64) error
}
