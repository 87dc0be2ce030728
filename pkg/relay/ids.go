// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// channelIDPrefix is prepended to bare channel ids found in links.
const channelIDPrefix = "-100"

// MakeChannelID encodes a bare channel id taken from a link.
func MakeChannelID(raw string) (int64, error) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, fmt.Errorf("%w: invalid channel id %q", ErrUnsupportedReference, raw)
	}
	return strconv.ParseInt(channelIDPrefix+raw, 10, 64)
}

// ParseChannelID returns the bare id of an encoded channel id.
func ParseChannelID(id int64) string {
	return strings.TrimPrefix(strconv.FormatInt(id, 10), channelIDPrefix)
}

// ParseDestination parses "chat" or "chat/topic".
func ParseDestination(s string) (Destination, error) {
	chat, topic, hasTopic := strings.Cut(strings.TrimSpace(s), "/")
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid chat id %q: %w", chat, err)
	}
	dest := Destination{ChatID: chatID}
	if hasTopic {
		dest.TopicID, err = strconv.Atoi(topic)
		if err != nil {
			return Destination{}, fmt.Errorf("invalid topic id %q: %w", topic, err)
		}
	}
	return dest, nil
}

// ChannelFromLink extracts a destination chat id from a channel link or a
// plain numeric id.
func ChannelFromLink(link string) (int64, error) {
	link = strings.TrimSpace(link)
	if id, err := strconv.ParseInt(link, 10, 64); err == nil {
		return id, nil
	}
	rest, ok := trimLinkHost(link)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedReference, link)
	}
	segs := strings.Split(rest, "/")
	if len(segs) < 2 || segs[0] != "c" {
		return 0, fmt.Errorf("%w: not a channel link %q", ErrUnsupportedReference, link)
	}
	return MakeChannelID(segs[1])
}

// MakeArtifactName builds the local name of a downloaded artifact. key is
// the message id, or the sender id when the message id is not usable.
func MakeArtifactName(prefix string, key int64, ext string) string {
	return fmt.Sprintf("%s_%d%s", prefix, key, ext)
}

// MakePartName builds the name of split part index (zero-based) next to
// path.
func MakePartName(path string, index int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s.part%03d%s", stem, index, ext))
}
