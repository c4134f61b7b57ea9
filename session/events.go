package session

// EventType identifies a controller-initiated notification.
type EventType int

const (
	// EventTimeout means a session was auto-stopped after the inactivity window.
	EventTimeout EventType = iota
	// EventRollover means a session hit the size bound and continued under a new title.
	EventRollover
)

// Event describes a lifecycle notification the caller-facing layer should
// deliver to the owner. NewTitle is set for rollovers only.
type Event struct {
	Type     EventType
	Owner    string
	OldTitle string
	NewTitle string
}
