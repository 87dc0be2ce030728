// Copyright 2024-2026 Aiku AI

package relay

import "errors"

var (
	// ErrAccessDenied is returned by clients when a source chat is
	// unreachable, banned, invalid or privacy-restricted.
	ErrAccessDenied = errors.New("access denied")
	// ErrProtectedSource marks a source locked by an administrator.
	ErrProtectedSource = errors.New("source is protected")
	// ErrNotFound is returned by clients when a message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrCapabilityUnavailable means an optional client is not configured.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrUnsupportedReference is returned for references no parser accepts.
	ErrUnsupportedReference = errors.New("unsupported reference")
)
