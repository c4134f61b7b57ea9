// Package testutil provides in-memory fakes and database helpers shared by
// package tests.
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/onnwee/chat-scribe/backend/archive"
)

// MemStore is an in-memory archive.Store with the same uniqueness and
// ordering semantics as the SQL implementation.
type MemStore struct {
	mu      sync.Mutex
	records map[string]archive.Record

	// CreateErr, when set, is returned by Create to simulate an unavailable store.
	CreateErr error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]archive.Record)}
}

func (m *MemStore) Create(ctx context.Context, rec archive.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.records[rec.Title]; ok {
		return archive.ErrTitleExists
	}
	m.records[rec.Title] = rec
	return nil
}

func (m *MemStore) GetByTitle(ctx context.Context, title string) (archive.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[title]
	if !ok {
		return archive.Record{}, archive.ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) ListPage(ctx context.Context, offset, limit int) ([]archive.ListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]archive.Record, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Title < all[j].Title
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	items := make([]archive.ListItem, 0, limit)
	for i := offset; i < len(all) && len(items) < limit; i++ {
		items = append(items, archive.ListItem{Title: all[i].Title, Owner: all[i].Owner, CreatedAt: all[i].CreatedAt})
	}
	return items, nil
}

func (m *MemStore) Delete(ctx context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[title]; !ok {
		return archive.ErrNotFound
	}
	delete(m.records, title)
	return nil
}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// SentMessage is one message captured by RecordingTransport.
type SentMessage struct {
	Target string
	Text   string
}

// RecordingTransport captures outbound replies for assertions.
type RecordingTransport struct {
	mu   sync.Mutex
	sent []SentMessage
}

func (t *RecordingTransport) SendMessage(ctx context.Context, target, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, SentMessage{Target: target, Text: text})
	return nil
}

// Sent returns a copy of all captured messages.
func (t *RecordingTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// StaticResolver resolves every media reference to a fixed payload.
type StaticResolver struct {
	Data []byte
	Err  error

	mu   sync.Mutex
	refs []string
}

func (r *StaticResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	r.mu.Lock()
	r.refs = append(r.refs, ref)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Data, nil
}

// Resolved returns every reference seen so far.
func (r *StaticResolver) Resolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.refs...)
}
