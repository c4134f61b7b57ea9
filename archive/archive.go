// Package archive defines the persisted recording model and the store
// contract used by the session controller and the HTTP API.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTitleExists is returned by Create when a record with the same title
	// has already been archived.
	ErrTitleExists = errors.New("record title already exists")
	// ErrNotFound is returned when no archived record matches the title.
	ErrNotFound = errors.New("record not found")
)

// Attachment is a media element captured alongside a message. Data holds the
// resolved bytes so archived records are self-contained even if the source
// URL later disappears.
type Attachment struct {
	URL  string `json:"url"`
	Data []byte `json:"data,omitempty"`
}

// Entry is one captured chat message.
type Entry struct {
	SenderID    string       `json:"sender_id"`
	DisplayName string       `json:"display_name"`
	SentAt      time.Time    `json:"sent_at"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Record is an immutable archived recording. Payload is the serialized entry
// sequence; the store treats it as opaque.
type Record struct {
	Title     string
	Owner     string
	Targets   []string
	CreatedAt time.Time
	Payload   []byte
}

// ListItem is one row of a paginated listing (no payload).
type ListItem struct {
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists finished recordings. Implementations must enforce title
// uniqueness in Create without side effects on conflict.
type Store interface {
	// Create inserts a new record; returns ErrTitleExists if the title is taken.
	Create(ctx context.Context, rec Record) error
	// GetByTitle returns the record or ErrNotFound.
	GetByTitle(ctx context.Context, title string) (Record, error)
	// ListPage returns up to limit items starting at offset, ordered by
	// creation time ascending.
	ListPage(ctx context.Context, offset, limit int) ([]ListItem, error)
	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, title string) error
}

// EncodeEntries serializes the ordered entry sequence into a record payload.
func EncodeEntries(entries []Entry) ([]byte, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	return b, nil
}

// DecodeEntries deserializes a record payload back into its entry sequence.
func DecodeEntries(payload []byte) ([]Entry, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}
