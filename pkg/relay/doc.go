// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay copies messages and their media from a source chat to one
// or more destination chats.
//
// A request carries a message link (or a handle to a forwarded message)
// and an editable status message. [Engine.Relay] resolves the link, fetches
// the message, forwards text and small media by reference, and downloads
// everything else into a private working directory before re-uploading it
// with a rendered caption.
//
// # Core Types
//
// [Engine] owns the pipeline and its collaborators. The messaging clients
// are interfaces: [PrimaryClient] is required, [SecondaryClient] and
// [PrivilegedClient] are optional and unlock stories, resumable uploads
// and files above the size ceiling.
//
// [PreferenceStore] holds per-user caption rules, uploader preferences and
// destinations, plus the global set of protected sources.
//
// # Delivery
//
// Uploads are routed by kind and size. Photos go out directly. Files at or
// above the size limit are split into parts or handed to the privileged
// client. Everything else follows the user's uploader preference. After a
// successful send the message is copied to the mirror chat and to any
// additional destinations; a failed copy is reported and never aborts the
// rest.
//
// # Sub-packages
//
//   - markup converts between markdown captions and HTML.
package relay
