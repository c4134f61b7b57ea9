package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
)

// InboundMessage is one normalized chat event delivered by the transport.
type InboundMessage struct {
	SenderID    string
	DisplayName string
	Text        string
	SentAt      time.Time
	MediaRefs   []string
}

// MediaResolver fetches the byte payload behind a media reference so archived
// records are self-contained.
type MediaResolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// Sink converts inbound chat events into captured entries, prefetching each
// media reference exactly once at capture time. A failed fetch keeps the
// reference URL without bytes.
type Sink struct {
	Resolver MediaResolver
}

// Entry builds the captured entry for one inbound message.
func (s *Sink) Entry(ctx context.Context, msg InboundMessage) archive.Entry {
	entry := archive.Entry{
		SenderID:    msg.SenderID,
		DisplayName: msg.DisplayName,
		SentAt:      msg.SentAt,
		Text:        msg.Text,
	}
	for _, ref := range msg.MediaRefs {
		att := archive.Attachment{URL: ref}
		if s.Resolver != nil {
			data, err := s.Resolver.Resolve(ctx, ref)
			if err != nil {
				slog.Warn("media prefetch failed", slog.String("ref", ref), slog.Any("err", err))
			} else {
				att.Data = data
			}
		}
		entry.Attachments = append(entry.Attachments, att)
	}
	return entry
}
