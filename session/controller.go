package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/telemetry"
)

// DefaultTitleLayout formats the fallback title when start gets none.
const DefaultTitleLayout = "2006-01-02_15:04:05"

// commitTimeout bounds internally initiated commits (timeout, shutdown flush).
const commitTimeout = 30 * time.Second

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	// InactivityWindow is how long a session may sit idle before it is
	// auto-stopped (default 5m).
	InactivityWindow time.Duration
	// RolloverLimit is the buffer size that triggers auto-rollover (default 100).
	RolloverLimit int
	// Notify receives lifecycle events (timeout, rollover). It is called from
	// controller goroutines and must not block. May be nil.
	Notify func(Event)
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Controller owns the lifecycle of live recordings. All state transitions for
// a given session are serialized on that session's lock; the registry
// arbitrates reservations across sessions.
type Controller struct {
	store  archive.Store
	reg    *Registry
	window time.Duration
	limit  int
	notify func(Event)
	now    func() time.Time

	// ctx bounds watchdog goroutines and internally initiated commits.
	ctx context.Context
}

// NewController builds a Controller whose background goroutines live until
// ctx is cancelled.
func NewController(ctx context.Context, store archive.Store, opts Options) *Controller {
	c := &Controller{
		store:  store,
		reg:    NewRegistry(),
		window: opts.InactivityWindow,
		limit:  opts.RolloverLimit,
		notify: opts.Notify,
		now:    opts.Now,
		ctx:    ctx,
	}
	if c.window <= 0 {
		c.window = 5 * time.Minute
	}
	if c.limit <= 0 {
		c.limit = 100
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start opens a new live session. An empty title defaults to the current
// local timestamp; empty targets default to the owner. It fails with
// TargetsBusyError when any target already belongs to a live session and with
// ErrTitleTaken when the title is live or archived.
func (c *Controller) Start(ctx context.Context, owner, title string, targets []string) (string, error) {
	if title == "" {
		title = c.now().Format(DefaultTitleLayout)
	}
	if len(targets) == 0 {
		targets = []string{owner}
	}
	now := c.now()
	s := &LiveSession{
		title:      title,
		owner:      owner,
		targets:    append([]string(nil), targets...),
		startedAt:  now,
		lastActive: now,
		touch:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if err := c.reg.reserve(s); err != nil {
		return title, err
	}
	// The reservation holds the live claim while the archive is consulted, so
	// no concurrent start can slip between the live and archived checks.
	if _, err := c.store.GetByTitle(ctx, title); err == nil {
		c.reg.release(s)
		return title, ErrTitleTaken
	} else if !errors.Is(err, archive.ErrNotFound) {
		c.reg.release(s)
		return title, fmt.Errorf("check archived title %q: %w", title, err)
	}

	go c.watch(s)

	if telemetry.SessionsStarted != nil {
		telemetry.SessionsStarted.Inc()
	}
	telemetry.SetLiveSessions(c.reg.count())
	slog.Info("recording started",
		slog.String("title", title),
		slog.String("owner", owner),
		slog.Any("targets", targets))
	return title, nil
}

// Accept appends one captured entry to the live session recording targetID
// and re-arms its inactivity timer. Hitting the size bound triggers an
// auto-rollover before Accept returns. Returns ErrNotRecording when no live
// session covers the target.
func (c *Controller) Accept(ctx context.Context, targetID string, entry archive.Entry) error {
	s := c.reg.lookupTarget(targetID)
	if s == nil {
		return ErrNotRecording
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRecording {
		return ErrNotRecording
	}
	s.entries = append(s.entries, entry)
	s.lastActive = c.now()
	select {
	case s.touch <- struct{}{}:
	default:
	}
	if telemetry.EntriesCaptured != nil {
		telemetry.EntriesCaptured.Inc()
	}
	if len(s.entries) >= c.limit {
		if err := c.rolloverLocked(ctx, s); err != nil {
			// The buffer is kept; the next accept retries the rollover.
			return fmt.Errorf("rollover %q: %w", s.title, err)
		}
	}
	return nil
}

// Stop resolves a session by explicit title, or by the session currently
// covering requesterID when title is empty, and commits it. Returns the final
// title on success and ErrNotRecording when nothing matched.
func (c *Controller) Stop(ctx context.Context, requesterID, title string) (string, error) {
	var s *LiveSession
	if title != "" {
		s = c.reg.lookupTitle(title)
	} else {
		s = c.reg.lookupTarget(requesterID)
	}
	if s == nil {
		return "", ErrNotRecording
	}
	return c.finish(ctx, s, "stop")
}

// StopAll commits every live session. Used on shutdown so buffered entries
// are not lost.
func (c *Controller) StopAll(ctx context.Context) {
	for _, st := range c.reg.snapshot() {
		if _, err := c.Stop(ctx, "", st.Title); err != nil && !errors.Is(err, ErrNotRecording) {
			slog.Warn("shutdown flush failed", slog.String("title", st.Title), slog.Any("err", err))
		}
	}
}

// Show returns the archived entries for a title, or archive.ErrNotFound.
func (c *Controller) Show(ctx context.Context, title string) ([]archive.Entry, error) {
	rec, err := c.store.GetByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return archive.DecodeEntries(rec.Payload)
}

// List returns one page of archived records ordered by creation time
// ascending. Non-positive num defaults to 10, negative page to 0.
func (c *Controller) List(ctx context.Context, page, num int) ([]archive.ListItem, error) {
	if num <= 0 {
		num = 10
	}
	if page < 0 {
		page = 0
	}
	return c.store.ListPage(ctx, page*num, num)
}

// Delete removes an archived record, passing through archive.ErrNotFound.
func (c *Controller) Delete(ctx context.Context, title string) error {
	return c.store.Delete(ctx, title)
}

// LiveSessions returns a snapshot of all live sessions.
func (c *Controller) LiveSessions() []Status { return c.reg.snapshot() }

// LiveCount returns the number of live sessions.
func (c *Controller) LiveCount() int { return c.reg.count() }

// finish commits the session's buffer as an archive record and releases its
// claims. Exactly one of {explicit stop, timeout, shutdown flush} wins: the
// state check below turns every later attempt into ErrNotRecording. A failed
// commit reverts the session to recording so a retried stop finds the buffer
// intact.
func (c *Controller) finish(ctx context.Context, s *LiveSession, reason string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRecording {
		return "", ErrNotRecording
	}
	s.state = stateArchiving
	rec, err := buildRecord(s)
	if err != nil {
		s.state = stateRecording
		return "", err
	}
	if err := c.store.Create(ctx, rec); err != nil {
		s.state = stateRecording
		if errors.Is(err, archive.ErrTitleExists) {
			// The registry held the live claim for this title, so the archive
			// conflicting means live and archived sets overlap somewhere.
			slog.Error("archive conflict for live-claimed title",
				slog.String("title", s.title), slog.String("reason", reason))
			if telemetry.CommitConflicts != nil {
				telemetry.CommitConflicts.Inc()
			}
			return "", fmt.Errorf("commit %q: %w", s.title, ErrTitleTaken)
		}
		return "", fmt.Errorf("commit %q: %w", s.title, err)
	}
	c.reg.release(s)
	close(s.done)
	if telemetry.SessionsArchived != nil {
		telemetry.SessionsArchived.Inc()
	}
	telemetry.SetLiveSessions(c.reg.count())
	slog.Info("recording archived",
		slog.String("title", rec.Title),
		slog.String("reason", reason),
		slog.Int("entries", len(s.entries)))
	return rec.Title, nil
}

// rolloverLocked commits the full buffer under the current title, then
// continues the same session under the next "(n)" title with owner and
// targets preserved. Caller holds s.mu.
func (c *Controller) rolloverLocked(ctx context.Context, s *LiveSession) error {
	oldTitle := s.title
	rec, err := buildRecord(s)
	if err != nil {
		return err
	}
	if err := c.store.Create(ctx, rec); err != nil {
		if errors.Is(err, archive.ErrTitleExists) {
			slog.Error("archive conflict for live-claimed title",
				slog.String("title", oldTitle), slog.String("reason", "rollover"))
		}
		return err
	}

	// Pick the first free continuation title. The committed record occupies
	// oldTitle, so the sequence is deterministic for repeated rollovers.
	next := NextTitle(oldTitle)
	for {
		if _, err := c.store.GetByTitle(ctx, next); err == nil {
			next = NextTitle(next)
			continue
		} else if !errors.Is(err, archive.ErrNotFound) {
			return fmt.Errorf("check rollover title %q: %w", next, err)
		}
		if c.reg.tryRename(s, s.title, next) {
			break
		}
		next = NextTitle(next)
	}

	now := c.now()
	s.title = next
	s.entries = nil
	s.startedAt = now
	s.lastActive = now
	select {
	case s.touch <- struct{}{}:
	default:
	}

	if telemetry.SessionRollovers != nil {
		telemetry.SessionRollovers.Inc()
	}
	if telemetry.SessionsArchived != nil {
		telemetry.SessionsArchived.Inc()
	}
	slog.Info("recording rolled over",
		slog.String("old_title", oldTitle),
		slog.String("new_title", next),
		slog.String("owner", s.owner))
	c.emit(Event{Type: EventRollover, Owner: s.owner, OldTitle: oldTitle, NewTitle: next})
	return nil
}

// watch is the single-owner task for one session: it owns the inactivity
// timer and auto-stops the session when the deadline passes without traffic.
// A touch re-arms the timer; the lastActive re-check makes the deadline race
// with accept resolve in accept's favor.
func (c *Controller) watch(s *LiveSession) {
	timer := time.NewTimer(c.window)
	defer timer.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-s.done:
			return
		case <-s.touch:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.window)
		case <-timer.C:
			s.mu.Lock()
			idle := c.now().Sub(s.lastActive)
			owner := s.owner
			s.mu.Unlock()
			if idle < c.window {
				// An accept raced the deadline; its re-arm wins.
				timer.Reset(c.window - idle)
				continue
			}
			cctx, cancel := context.WithTimeout(c.ctx, commitTimeout)
			title, err := c.finish(cctx, s, "timeout")
			cancel()
			switch {
			case err == nil:
				if telemetry.SessionTimeouts != nil {
					telemetry.SessionTimeouts.Inc()
				}
				c.emit(Event{Type: EventTimeout, Owner: owner, OldTitle: title})
				return
			case errors.Is(err, ErrNotRecording):
				// An explicit stop won the race.
				return
			default:
				slog.Warn("timeout commit failed, keeping session",
					slog.String("owner", owner), slog.Any("err", err))
				timer.Reset(c.window)
			}
		}
	}
}

func (c *Controller) emit(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}

// buildRecord snapshots the session buffer into an archive record. The record
// timestamp is the session start, which keeps list ordering stable across
// rollover segments. Caller holds s.mu.
func buildRecord(s *LiveSession) (archive.Record, error) {
	payload, err := archive.EncodeEntries(s.entries)
	if err != nil {
		return archive.Record{}, fmt.Errorf("encode %q: %w", s.title, err)
	}
	return archive.Record{
		Title:     s.title,
		Owner:     s.owner,
		Targets:   append([]string(nil), s.targets...),
		CreatedAt: s.startedAt,
		Payload:   payload,
	}, nil
}

var titleSuffixRe = regexp.MustCompile(`\((\d+)\)$`)

// NextTitle computes the continuation title for a rollover: "T" -> "T(1)",
// "T(3)" -> "T(4)".
func NextTitle(title string) string {
	if m := titleSuffixRe.FindStringSubmatchIndex(title); m != nil {
		n, err := strconv.Atoi(title[m[2]:m[3]])
		if err == nil {
			return fmt.Sprintf("%s(%d)", title[:m[0]], n+1)
		}
	}
	return title + "(1)"
}
