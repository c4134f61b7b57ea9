package archive

import (
	"context"
	"fmt"

	"github.com/onnwee/chat-scribe/backend/crypto"
)

// EncryptedStore wraps a Store and encrypts record payloads at rest. Titles,
// owners, and targets stay in the clear so listing and lookups are unchanged.
type EncryptedStore struct {
	inner Store
	enc   crypto.Encryptor
}

// NewEncryptedStore wraps inner so every payload passes through enc.
func NewEncryptedStore(inner Store, enc crypto.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

func (s *EncryptedStore) Create(ctx context.Context, rec Record) error {
	if len(rec.Payload) > 0 {
		sealed, err := s.enc.Encrypt(rec.Payload)
		if err != nil {
			return fmt.Errorf("encrypt payload %q: %w", rec.Title, err)
		}
		rec.Payload = sealed
	}
	return s.inner.Create(ctx, rec)
}

func (s *EncryptedStore) GetByTitle(ctx context.Context, title string) (Record, error) {
	rec, err := s.inner.GetByTitle(ctx, title)
	if err != nil {
		return Record{}, err
	}
	if len(rec.Payload) > 0 {
		plain, err := s.enc.Decrypt(rec.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("decrypt payload %q: %w", title, err)
		}
		rec.Payload = plain
	}
	return rec, nil
}

func (s *EncryptedStore) ListPage(ctx context.Context, offset, limit int) ([]ListItem, error) {
	return s.inner.ListPage(ctx, offset, limit)
}

func (s *EncryptedStore) Delete(ctx context.Context, title string) error {
	return s.inner.Delete(ctx, title)
}
