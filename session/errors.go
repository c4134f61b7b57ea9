package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTitleTaken means the requested title is already claimed, either by a
	// live session or by an archived record.
	ErrTitleTaken = errors.New("record title already exists")
	// ErrNotRecording means no live session matched the stop/accept target.
	ErrNotRecording = errors.New("not recording")
)

// TargetsBusyError reports targets that already belong to a live session.
type TargetsBusyError struct {
	Targets []string
}

func (e *TargetsBusyError) Error() string {
	return fmt.Sprintf("targets already being recorded: %s", strings.Join(e.Targets, ", "))
}
