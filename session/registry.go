// Package session holds the in-memory state of live recordings: the registry
// mapping participants and titles to live sessions, and the controller that
// owns each session's lifecycle (start, capture, rollover, stop, timeout).
package session

import (
	"sync"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
)

type state int

const (
	stateRecording state = iota
	stateArchiving
)

// LiveSession is one in-progress recording. Its fields are guarded by mu and
// mutated only by the controller.
type LiveSession struct {
	mu         sync.Mutex
	title      string
	owner      string
	targets    []string
	entries    []archive.Entry
	startedAt  time.Time
	lastActive time.Time
	state      state

	// touch wakes the watchdog to re-arm the inactivity timer; done ends it.
	touch chan struct{}
	done  chan struct{}
}

// Status is a read-only snapshot of a live session for status reporting.
type Status struct {
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	Targets   []string  `json:"targets"`
	StartedAt time.Time `json:"started_at"`
	Entries   int       `json:"entries"`
}

// Registry is the single synchronization point for session reservations. It
// maintains the title index and the reverse index from participant id to live
// session, so "is X being recorded" is one lookup.
type Registry struct {
	mu       sync.Mutex
	byTitle  map[string]*LiveSession
	byTarget map[string]*LiveSession
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTitle:  make(map[string]*LiveSession),
		byTarget: make(map[string]*LiveSession),
	}
}

// reserve atomically claims the session's title and every target id. On
// conflict nothing is claimed: busy targets are reported via TargetsBusyError,
// a live title via ErrTitleTaken.
func (r *Registry) reserve(s *LiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var busy []string
	for _, t := range s.targets {
		if _, ok := r.byTarget[t]; ok {
			busy = append(busy, t)
		}
	}
	if len(busy) > 0 {
		return &TargetsBusyError{Targets: busy}
	}
	if _, ok := r.byTitle[s.title]; ok {
		return ErrTitleTaken
	}
	r.byTitle[s.title] = s
	for _, t := range s.targets {
		r.byTarget[t] = s
	}
	return nil
}

// release removes the session's title and target claims. Claims that have
// been re-pointed elsewhere (never expected) are left alone.
func (r *Registry) release(s *LiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byTitle[s.title] == s {
		delete(r.byTitle, s.title)
	}
	for _, t := range s.targets {
		if r.byTarget[t] == s {
			delete(r.byTarget, t)
		}
	}
}

// tryRename moves the session's title claim during rollover; target claims
// are preserved as-is. It reports false without changes when another session
// already holds newTitle.
func (r *Registry) tryRename(s *LiveSession, oldTitle, newTitle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byTitle[newTitle]; ok && cur != s {
		return false
	}
	if r.byTitle[oldTitle] == s {
		delete(r.byTitle, oldTitle)
	}
	r.byTitle[newTitle] = s
	return true
}

// lookupTarget returns the live session capturing the given participant, or nil.
func (r *Registry) lookupTarget(id string) *LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTarget[id]
}

// lookupTitle returns the live session with the given title, or nil.
func (r *Registry) lookupTitle(title string) *LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTitle[title]
}

// count returns the number of live sessions.
func (r *Registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTitle)
}

// snapshot returns a status view of every live session.
func (r *Registry) snapshot() []Status {
	r.mu.Lock()
	sessions := make([]*LiveSession, 0, len(r.byTitle))
	for _, s := range r.byTitle {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, Status{
			Title:     s.title,
			Owner:     s.owner,
			Targets:   append([]string(nil), s.targets...),
			StartedAt: s.startedAt,
			Entries:   len(s.entries),
		})
		s.mu.Unlock()
	}
	return out
}
