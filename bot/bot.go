// Package bot implements the operator command surface: parsing /record
// commands, authorization, and translation of controller results into chat
// replies. Inbound non-command traffic is routed to the session controller
// through the message sink.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/session"
	"github.com/onnwee/chat-scribe/backend/telemetry"
)

// Authorizer decides whether a participant may issue commands.
type Authorizer interface {
	Allowed(id string) bool
}

// Whitelist is the set of operator logins allowed to issue commands.
type Whitelist map[string]struct{}

// NewWhitelist builds a whitelist from logins (normalized to lowercase).
func NewWhitelist(ids []string) Whitelist {
	w := make(Whitelist, len(ids))
	for _, id := range ids {
		w[strings.ToLower(id)] = struct{}{}
	}
	return w
}

func (w Whitelist) Allowed(id string) bool {
	_, ok := w[strings.ToLower(id)]
	return ok
}

// Transport delivers user-visible responses and notifications. target is the
// participant the message addresses.
type Transport interface {
	SendMessage(ctx context.Context, target, text string) error
}

// Bot wires the command surface to the controller. Controller is set after
// construction because the controller's event callback points back here.
type Bot struct {
	Prefix     string
	Auth       Authorizer
	Transport  Transport
	Controller *session.Controller
	Sink       *Sink
}

// HandleMessage is the single entrypoint for every inbound chat message.
// Command messages are dispatched and never captured; everything else feeds
// the record path for whichever session covers the sender.
func (b *Bot) HandleMessage(ctx context.Context, msg InboundMessage) {
	if cmd, ok := ParseCommand(b.Prefix, msg.Text); ok {
		b.reply(ctx, msg.SenderID, b.dispatch(ctx, msg, cmd))
		return
	}
	entry := b.Sink.Entry(ctx, msg)
	if err := b.Controller.Accept(ctx, msg.SenderID, entry); err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			return
		}
		slog.Warn("capture failed", slog.String("sender", msg.SenderID), slog.Any("err", err))
	}
}

// HandleEvent turns controller lifecycle events into owner notifications.
// Wire it as the controller's Notify callback.
func (b *Bot) HandleEvent(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	switch ev.Type {
	case EventTimeoutType:
		b.reply(ctx, ev.Owner, PlainText("WARN: Timeout, auto stop recording %s", ev.OldTitle))
	case EventRolloverType:
		b.reply(ctx, ev.Owner, PlainText("WARN: Max message length reached, auto stop recording %s and start recording %s", ev.OldTitle, ev.NewTitle))
	}
}

// Aliases so callers of HandleEvent don't need a second session import.
const (
	EventTimeoutType  = session.EventTimeout
	EventRolloverType = session.EventRollover
)

func (b *Bot) dispatch(ctx context.Context, msg InboundMessage, cmd Command) Response {
	if b.Auth == nil || !b.Auth.Allowed(msg.SenderID) {
		return PlainText("FATAL: Permission denied")
	}
	name := cmd.Name
	if name == "" {
		name = "help"
	}
	telemetry.CountCommand(name)
	switch cmd.Name {
	case "start":
		return b.handleStart(ctx, msg.SenderID, cmd)
	case "stop":
		return b.handleStop(ctx, msg.SenderID, cmd)
	case "show":
		return b.handleShow(ctx, cmd)
	case "list":
		return b.handleList(ctx, cmd)
	case "del":
		return b.handleDelete(ctx, cmd)
	case "help", "":
		return helpResponse(b.Prefix, cmd.Topic)
	default:
		return helpResponse(b.Prefix, cmd.Name)
	}
}

func (b *Bot) handleStart(ctx context.Context, owner string, cmd Command) Response {
	title, err := b.Controller.Start(ctx, owner, cmd.Title, cmd.Targets)
	var busy *session.TargetsBusyError
	switch {
	case err == nil:
		return PlainText("INFO: Start recording %s", title)
	case errors.As(err, &busy):
		return PlainText("ERROR: %s are already being recorded", strings.Join(busy.Targets, ", "))
	case errors.Is(err, session.ErrTitleTaken):
		return PlainText("ERROR: Record %s already exists", title)
	default:
		slog.Error("start failed", slog.String("owner", owner), slog.Any("err", err))
		return PlainText("ERROR: Failed to start recording, try again")
	}
}

func (b *Bot) handleStop(ctx context.Context, requester string, cmd Command) Response {
	title, err := b.Controller.Stop(ctx, requester, cmd.Title)
	switch {
	case err == nil:
		return PlainText("INFO: Stop recording %s", title)
	case errors.Is(err, session.ErrNotRecording):
		if cmd.Title == "" {
			return PlainText("ERROR: You are not being recorded")
		}
		return PlainText("ERROR: %s is not recording", cmd.Title)
	case errors.Is(err, session.ErrTitleTaken):
		return PlainText("ERROR: Record %s already exists", cmd.Title)
	default:
		slog.Error("stop failed", slog.String("requester", requester), slog.Any("err", err))
		return PlainText("ERROR: Failed to stop recording, try again")
	}
}

func (b *Bot) handleShow(ctx context.Context, cmd Command) Response {
	if cmd.Title == "" {
		return PlainText("%s", helpFor(b.Prefix, "show"))
	}
	entries, err := b.Controller.Show(ctx, cmd.Title)
	switch {
	case err == nil:
		return Transcript(cmd.Title, entries)
	case errors.Is(err, archive.ErrNotFound):
		return PlainText("ERROR: No matching record found for %s", cmd.Title)
	default:
		slog.Error("show failed", slog.String("title", cmd.Title), slog.Any("err", err))
		return PlainText("ERROR: Failed to load record %s", cmd.Title)
	}
}

func (b *Bot) handleList(ctx context.Context, cmd Command) Response {
	items, err := b.Controller.List(ctx, cmd.Page, cmd.Num)
	if err != nil {
		slog.Error("list failed", slog.Any("err", err))
		return PlainText("ERROR: Failed to list records")
	}
	if len(items) == 0 {
		return PlainText("No record found")
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Title+"@"+it.Owner+" ("+it.CreatedAt.Format(time.DateTime)+")")
	}
	return PlainText("%s", strings.Join(lines, " | "))
}

func (b *Bot) handleDelete(ctx context.Context, cmd Command) Response {
	if cmd.Title == "" {
		return PlainText("%s", helpFor(b.Prefix, "del"))
	}
	err := b.Controller.Delete(ctx, cmd.Title)
	switch {
	case err == nil:
		return PlainText("INFO: %s has been deleted", cmd.Title)
	case errors.Is(err, archive.ErrNotFound):
		return PlainText("ERROR: No such record")
	default:
		slog.Error("delete failed", slog.String("title", cmd.Title), slog.Any("err", err))
		return PlainText("ERROR: Failed to delete record %s", cmd.Title)
	}
}

func (b *Bot) reply(ctx context.Context, target string, resp Response) {
	if err := b.Transport.SendMessage(ctx, target, resp.Render()); err != nil {
		slog.Warn("send reply failed", slog.String("target", target), slog.Any("err", err))
	}
}
