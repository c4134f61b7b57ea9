package bot

import (
	"fmt"
	"strings"

	"github.com/onnwee/chat-scribe/backend/archive"
)

// maxRenderLen caps a rendered chat reply; Twitch truncates around 500 runes.
const maxRenderLen = 450

// ResponseKind discriminates the response union.
type ResponseKind int

const (
	// ResponsePlainText is a plain text reply.
	ResponsePlainText ResponseKind = iota
	// ResponseTranscript is a structured archived-record view.
	ResponseTranscript
)

// Response is the tagged union returned by command handlers. Structured
// content is flattened to chat text in exactly one place, Render, at the
// transport boundary.
type Response struct {
	Kind    ResponseKind
	Text    string
	Title   string
	Entries []archive.Entry
}

// PlainText builds a plain text response.
func PlainText(format string, args ...any) Response {
	return Response{Kind: ResponsePlainText, Text: fmt.Sprintf(format, args...)}
}

// Transcript builds a structured response for an archived record.
func Transcript(title string, entries []archive.Entry) Response {
	return Response{Kind: ResponseTranscript, Title: title, Entries: entries}
}

// Render flattens the response into a single chat line.
func (r Response) Render() string {
	switch r.Kind {
	case ResponseTranscript:
		var b strings.Builder
		fmt.Fprintf(&b, "INFO: Record %s (%d entries)", r.Title, len(r.Entries))
		for i, e := range r.Entries {
			sep := " | "
			if i == 0 {
				sep = ": "
			}
			line := fmt.Sprintf("%s[%s] %s", sep, e.DisplayName, e.Text)
			if b.Len()+len(line) > maxRenderLen {
				b.WriteString(" …")
				break
			}
			b.WriteString(line)
		}
		return b.String()
	default:
		return r.Text
	}
}
