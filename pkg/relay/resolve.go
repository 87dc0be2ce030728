// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// LinkKind is the shape of a parsed source link.
type LinkKind int

const (
	// LinkInternal is a c/<channel>/<message> link.
	LinkInternal LinkKind = iota + 1
	// LinkBot is a b/<chat>/<message> link exported by bots.
	LinkBot
	// LinkStory is a <peer>/s/<story> link.
	LinkStory
	// LinkPublic is a <username>/<message> link.
	LinkPublic
)

func (k LinkKind) String() string {
	switch k {
	case LinkInternal:
		return "internal"
	case LinkBot:
		return "bot"
	case LinkStory:
		return "story"
	case LinkPublic:
		return "public"
	default:
		return "unknown"
	}
}

// ParsedLink is a source link split into its parts. MessageID already
// includes the offset, except for stories.
type ParsedLink struct {
	Kind      LinkKind
	Peer      Peer
	MessageID int
}

var linkHosts = []string{"t.me/", "telegram.me/", "telegram.dog/"}

func trimLinkHost(link string) (string, bool) {
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")
	link = strings.TrimPrefix(link, "www.")
	for _, host := range linkHosts {
		if rest, ok := strings.CutPrefix(link, host); ok {
			return rest, true
		}
	}
	return "", false
}

// peerFromSegment reads a link segment as a numeric id or a username.
func peerFromSegment(seg string, encode bool) (Peer, error) {
	if seg != "" && strings.TrimLeft(seg, "0123456789") == "" {
		if encode {
			id, err := MakeChannelID(seg)
			return PeerID(id), err
		}
		id, err := strconv.ParseInt(seg, 10, 64)
		return PeerID(id), err
	}
	if seg == "" {
		return Peer{}, fmt.Errorf("%w: empty chat segment", ErrUnsupportedReference)
	}
	return PeerUsername(seg), nil
}

// ParseLink parses a source message link and applies offset to the message
// id.
func ParseLink(raw string, offset int) (ParsedLink, error) {
	link := strings.TrimSpace(raw)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	link = strings.TrimSuffix(link, "/")
	rest, ok := trimLinkHost(link)
	if !ok {
		return ParsedLink{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, raw)
	}
	segs := strings.Split(rest, "/")
	if len(segs) < 2 {
		return ParsedLink{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, raw)
	}
	last, err := strconv.Atoi(segs[len(segs)-1])
	if err != nil {
		return ParsedLink{}, fmt.Errorf("%w: invalid message id in %q", ErrUnsupportedReference, raw)
	}

	var parsed ParsedLink
	switch {
	case segs[0] == "c" && len(segs) >= 3:
		parsed.Kind = LinkInternal
		var id int64
		id, err = MakeChannelID(segs[1])
		parsed.Peer = PeerID(id)
		parsed.MessageID = last + offset
	case segs[0] == "b" && len(segs) >= 3:
		parsed.Kind = LinkBot
		parsed.Peer, err = peerFromSegment(segs[len(segs)-2], false)
		parsed.MessageID = last + offset
	case segs[0] == "c" || segs[0] == "b":
		return ParsedLink{}, fmt.Errorf("%w: missing chat or message id in %q", ErrUnsupportedReference, raw)
	case len(segs) >= 3 && segs[1] == "s":
		parsed.Kind = LinkStory
		parsed.Peer, err = peerFromSegment(segs[0], true)
		parsed.MessageID = last
	case len(segs) == 2 || len(segs) == 3:
		parsed.Kind = LinkPublic
		parsed.Peer = PeerUsername(segs[0])
		parsed.MessageID = last + offset
	default:
		return ParsedLink{}, fmt.Errorf("%w: %q", ErrUnsupportedReference, raw)
	}
	if err != nil {
		return ParsedLink{}, err
	}
	return parsed, nil
}

// resolvedSource is the result of link resolution. When done is set the
// request has been fully handled and outcome is final.
type resolvedSource struct {
	ref     MessageRef
	done    bool
	outcome Outcome
}

func (e *Engine) resolve(ctx context.Context, req *Request, status *StatusMessage) (resolvedSource, error) {
	var link ParsedLink
	if req.Forwarded != nil {
		link = ParsedLink{Kind: LinkInternal, Peer: req.Forwarded.Peer, MessageID: req.Forwarded.ID + req.Offset}
	} else {
		var err error
		link, err = ParseLink(req.Reference, req.Offset)
		if err != nil {
			return resolvedSource{}, err
		}
	}

	switch link.Kind {
	case LinkStory:
		status.Edit(ctx, msgStoryDetected)
		if e.secondary == nil {
			status.Finalize(ctx, msgStoryLoginRequired)
			return resolvedSource{done: true, outcome: OutcomeHandled}, nil
		}
		return resolvedSource{done: true, outcome: e.relayStory(ctx, req, status, link)}, nil
	case LinkPublic:
		status.Edit(ctx, msgPublicDetected)
		return resolvedSource{done: true, outcome: e.relayPublic(ctx, req, status, link)}, nil
	}

	protected, err := e.protectedSources(ctx)
	if err != nil {
		return resolvedSource{}, err
	}
	if _, ok := protected[link.Peer.ID]; ok && link.Peer.ID != 0 {
		status.Finalize(ctx, msgProtected)
		return resolvedSource{done: true, outcome: OutcomeRejected}, nil
	}
	status.Edit(ctx, msgFetching)
	return resolvedSource{ref: MessageRef{Peer: link.Peer, ID: link.MessageID}}, nil
}

func (e *Engine) protectedSources(ctx context.Context) (map[int64]struct{}, error) {
	if e.store == nil {
		return nil, nil
	}
	protected, err := e.store.ListProtectedSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list protected sources: %w", err)
	}
	return protected, nil
}
