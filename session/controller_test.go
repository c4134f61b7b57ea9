package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/testutil"
)

func newTestController(t *testing.T, store archive.Store, opts Options) *Controller {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewController(ctx, store, opts)
}

func entry(sender, text string) archive.Entry {
	return archive.Entry{SenderID: sender, DisplayName: sender, Text: text, SentAt: time.Now()}
}

func TestStartDefaultsTitleAndTargets(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	store := testutil.NewMemStore()
	c := newTestController(t, store, Options{Now: func() time.Time { return fixed }})
	ctx := context.Background()

	title, err := c.Start(ctx, "alice", "", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if want := "2024-05-01_12:30:45"; title != want {
		t.Fatalf("default title = %q, want %q", title, want)
	}

	// Owner is the implicit target.
	if err := c.Accept(ctx, "alice", entry("alice", "hello")); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got, err := c.Stop(ctx, "alice", "")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got != title {
		t.Fatalf("stop returned %q, want %q", got, title)
	}

	rec, err := store.GetByTitle(ctx, title)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Owner != "alice" {
		t.Errorf("owner = %q, want alice", rec.Owner)
	}
	if len(rec.Targets) != 1 || rec.Targets[0] != "alice" {
		t.Errorf("targets = %v, want [alice]", rec.Targets)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, fixed)
	}
}

func TestStartTargetsBusy(t *testing.T) {
	c := newTestController(t, testutil.NewMemStore(), Options{})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "first", []string{"bob", "carol"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := c.Start(ctx, "dave", "second", []string{"carol", "erin"})
	var busy *TargetsBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("err = %v, want TargetsBusyError", err)
	}
	if len(busy.Targets) != 1 || busy.Targets[0] != "carol" {
		t.Fatalf("busy targets = %v, want [carol]", busy.Targets)
	}
	// Nothing was claimed for the failed start.
	if _, err := c.Start(ctx, "dave", "second", []string{"erin"}); err != nil {
		t.Fatalf("retry without busy target: %v", err)
	}
}

func TestStartLiveTitleTaken(t *testing.T) {
	c := newTestController(t, testutil.NewMemStore(), Options{})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "trip", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Start(ctx, "bob", "trip", nil); !errors.Is(err, ErrTitleTaken) {
		t.Fatalf("err = %v, want ErrTitleTaken", err)
	}
}

func TestStartArchivedTitleTaken(t *testing.T) {
	store := testutil.NewMemStore()
	ctx := context.Background()
	if err := store.Create(ctx, archive.Record{Title: "trip", Owner: "old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newTestController(t, store, Options{})

	if _, err := c.Start(ctx, "alice", "trip", nil); !errors.Is(err, ErrTitleTaken) {
		t.Fatalf("err = %v, want ErrTitleTaken", err)
	}
	// The failed start must not leave a target claim behind.
	if _, err := c.Start(ctx, "alice", "trip2", nil); err != nil {
		t.Fatalf("start after conflict: %v", err)
	}
}

func TestAcceptOrderRoundTrip(t *testing.T) {
	store := testutil.NewMemStore()
	c := newTestController(t, store, Options{})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "chat", []string{"bob"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	texts := []string{"one", "two", "three"}
	for _, txt := range texts {
		if err := c.Accept(ctx, "bob", entry("bob", txt)); err != nil {
			t.Fatalf("accept %q: %v", txt, err)
		}
	}
	if _, err := c.Stop(ctx, "alice", "chat"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	entries, err := c.Show(ctx, "chat")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(entries) != len(texts) {
		t.Fatalf("entries = %d, want %d", len(entries), len(texts))
	}
	for i, txt := range texts {
		if entries[i].Text != txt {
			t.Errorf("entries[%d].Text = %q, want %q", i, entries[i].Text, txt)
		}
	}
}

func TestAcceptNotRecording(t *testing.T) {
	c := newTestController(t, testutil.NewMemStore(), Options{})
	if err := c.Accept(context.Background(), "nobody", entry("nobody", "hi")); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
}

func TestStopTwice(t *testing.T) {
	c := newTestController(t, testutil.NewMemStore(), Options{})
	ctx := context.Background()
	if _, err := c.Start(ctx, "alice", "once", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Stop(ctx, "", "once"); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if _, err := c.Stop(ctx, "", "once"); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second stop err = %v, want ErrNotRecording", err)
	}
}

func TestRolloverAtLimit(t *testing.T) {
	store := testutil.NewMemStore()
	events := make(chan Event, 8)
	c := newTestController(t, store, Options{
		RolloverLimit: 2,
		Notify:        func(ev Event) { events <- ev },
	})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "log", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Accept(ctx, "alice", entry("alice", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
	}

	// The full buffer was committed under the original title.
	entries, err := c.Show(ctx, "log")
	if err != nil {
		t.Fatalf("show archived segment: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("archived entries = %d, want 2", len(entries))
	}

	// The session continues under the next title with an empty buffer.
	live := c.LiveSessions()
	if len(live) != 1 {
		t.Fatalf("live sessions = %d, want 1", len(live))
	}
	if live[0].Title != "log(1)" {
		t.Errorf("continuation title = %q, want log(1)", live[0].Title)
	}
	if live[0].Entries != 0 {
		t.Errorf("continuation entries = %d, want 0", live[0].Entries)
	}

	select {
	case ev := <-events:
		if ev.Type != EventRollover || ev.OldTitle != "log" || ev.NewTitle != "log(1)" {
			t.Errorf("event = %+v, want rollover log -> log(1)", ev)
		}
	default:
		t.Error("no rollover event emitted")
	}

	// A second rollover continues the sequence.
	for i := 0; i < 2; i++ {
		if err := c.Accept(ctx, "alice", entry("alice", fmt.Sprintf("n%d", i))); err != nil {
			t.Fatalf("accept second round %d: %v", i, err)
		}
	}
	live = c.LiveSessions()
	if len(live) != 1 || live[0].Title != "log(2)" {
		t.Fatalf("after second rollover live = %+v, want title log(2)", live)
	}
	if store.Len() != 2 {
		t.Fatalf("archived records = %d, want 2", store.Len())
	}
}

func TestRolloverSkipsArchivedTitle(t *testing.T) {
	store := testutil.NewMemStore()
	ctx := context.Background()
	if err := store.Create(ctx, archive.Record{Title: "log(1)", Owner: "old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newTestController(t, store, Options{RolloverLimit: 1})

	if _, err := c.Start(ctx, "alice", "log", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Accept(ctx, "alice", entry("alice", "m")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	live := c.LiveSessions()
	if len(live) != 1 || live[0].Title != "log(2)" {
		t.Fatalf("live = %+v, want title log(2)", live)
	}
}

func TestNextTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"log", "log(1)"},
		{"log(1)", "log(2)"},
		{"log(9)", "log(10)"},
		{"a(b)", "a(b)(1)"},
		{"2024-05-01_12:30:45", "2024-05-01_12:30:45(1)"},
	}
	for _, tc := range cases {
		if got := NextTitle(tc.in); got != tc.want {
			t.Errorf("NextTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTimeoutAutoStops(t *testing.T) {
	store := testutil.NewMemStore()
	events := make(chan Event, 1)
	c := newTestController(t, store, Options{
		InactivityWindow: 40 * time.Millisecond,
		Notify:           func(ev Event) { events <- ev },
	})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "idle", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventTimeout || ev.OldTitle != "idle" {
			t.Fatalf("event = %+v, want timeout for idle", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout event")
	}
	if c.LiveCount() != 0 {
		t.Errorf("live count = %d, want 0", c.LiveCount())
	}
	if _, err := store.GetByTitle(ctx, "idle"); err != nil {
		t.Errorf("timed-out session not archived: %v", err)
	}
}

func TestAcceptDefersTimeout(t *testing.T) {
	store := testutil.NewMemStore()
	events := make(chan Event, 1)
	c := newTestController(t, store, Options{
		InactivityWindow: 300 * time.Millisecond,
		Notify:           func(ev Event) { events <- ev },
	})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "busy", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := c.Accept(ctx, "alice", entry("alice", "still here")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	// Past the original deadline but only ~200ms idle since the accept.
	if c.LiveCount() != 1 {
		t.Fatal("session timed out despite recent traffic")
	}
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("session never timed out after traffic stopped")
	}
}

func TestCommitFailureKeepsBuffer(t *testing.T) {
	store := testutil.NewMemStore()
	store.CreateErr = errors.New("archive unavailable")
	c := newTestController(t, store, Options{})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "flaky", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Accept(ctx, "alice", entry("alice", "first")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := c.Stop(ctx, "alice", ""); err == nil {
		t.Fatal("stop succeeded with failing store")
	}
	// The session is still live and still capturing.
	if err := c.Accept(ctx, "alice", entry("alice", "second")); err != nil {
		t.Fatalf("accept after failed stop: %v", err)
	}

	store.CreateErr = nil
	if _, err := c.Stop(ctx, "alice", ""); err != nil {
		t.Fatalf("retried stop: %v", err)
	}
	entries, err := c.Show(ctx, "flaky")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (buffer preserved across failed commit)", len(entries))
	}
}

func TestListDefaultsAndOrder(t *testing.T) {
	store := testutil.NewMemStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		rec := archive.Record{
			Title:     fmt.Sprintf("r%02d", i),
			Owner:     "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	c := newTestController(t, store, Options{})

	items, err := c.List(ctx, -1, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("default page size = %d, want 10", len(items))
	}
	if items[0].Title != "r00" {
		t.Errorf("first item = %q, want r00 (oldest first)", items[0].Title)
	}

	items, err = c.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(items) != 5 || items[0].Title != "r10" {
		t.Fatalf("page 1 = %d items starting %q, want 5 starting r10", len(items), items[0].Title)
	}
}

func TestDeletePassthrough(t *testing.T) {
	c := newTestController(t, testutil.NewMemStore(), Options{})
	if err := c.Delete(context.Background(), "ghost"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("err = %v, want archive.ErrNotFound", err)
	}
}

func TestStopAllFlushes(t *testing.T) {
	store := testutil.NewMemStore()
	c := newTestController(t, store, Options{})
	ctx := context.Background()

	if _, err := c.Start(ctx, "alice", "a", nil); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, err := c.Start(ctx, "bob", "b", nil); err != nil {
		t.Fatalf("start b: %v", err)
	}
	if err := c.Accept(ctx, "alice", entry("alice", "buffered")); err != nil {
		t.Fatalf("accept: %v", err)
	}

	c.StopAll(ctx)
	if c.LiveCount() != 0 {
		t.Errorf("live count = %d, want 0", c.LiveCount())
	}
	if store.Len() != 2 {
		t.Errorf("archived = %d, want 2", store.Len())
	}
}
