package archive_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/crypto"
	"github.com/onnwee/chat-scribe/backend/testutil"
)

func newEncryptedStore(t *testing.T) (*archive.EncryptedStore, *testutil.MemStore) {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	inner := testutil.NewMemStore()
	return archive.NewEncryptedStore(inner, enc), inner
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store, inner := newEncryptedStore(t)
	ctx := context.Background()

	payload, err := archive.EncodeEntries([]archive.Entry{{SenderID: "bob", Text: "hello"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := store.Create(ctx, archive.Record{Title: "trip", Owner: "alice", Payload: payload}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The inner store must only ever see ciphertext.
	raw, err := inner.GetByTitle(ctx, "trip")
	if err != nil {
		t.Fatalf("inner get: %v", err)
	}
	if string(raw.Payload) == string(payload) {
		t.Fatal("payload stored in the clear")
	}

	rec, err := store.GetByTitle(ctx, "trip")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	entries, err := archive.DecodeEntries(rec.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "hello" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestEncryptedStorePassesThroughErrors(t *testing.T) {
	store, _ := newEncryptedStore(t)
	ctx := context.Background()
	if _, err := store.GetByTitle(ctx, "ghost"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "ghost"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}
