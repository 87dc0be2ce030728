// Copyright 2024-2026 Aiku AI

package relay

// User-visible status texts.
const (
	msgProtected          = "❌ This channel is protected."
	msgAccessDenied       = "❌ Access denied. Have you joined the channel?"
	msgFetching           = "🔍 Fetching message..."
	msgStoryDetected      = "📖 Story link detected..."
	msgStoryLoginRequired = "❌ Login required to save stories."
	msgStoryDownloading   = "⬇️ Downloading story..."
	msgStoryUploading     = "📤 Uploading story..."
	msgStoryEmpty         = "❌ No story available or it has no media."
	msgStoryDone          = "✅ Story processed successfully."
	msgPublicDetected     = "🔗 Public link detected..."
	msgPublicAlternative  = "🔄 Trying alternative method..."
	msgPublicUnavailable  = "❌ Could not access this chat. Log in to relay from it."
	msgPublicNotFound     = "❌ Message not found or inaccessible."
	msgLargeUnavailable   = "**❌ Large upload not available: privileged client not configured**"
	msgLargeStarting      = "**✅ Large upload starting...**"
	msgUploadingStream    = "__**Uploading...**__"
	msgUpsellButton       = "💎 Get Premium to Forward"
	msgFailedPrefix       = "❌ Relay failed: "

	titleDownloading = "Downloading"
	titleUploading   = "Uploading"
)
