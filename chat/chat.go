package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-scribe/backend/bot"
	"github.com/onnwee/chat-scribe/backend/config"
)

// Transport replies in the bot's channel, addressing the target by mention.
type Transport struct {
	Client  *twitch.Client
	Channel string
}

func (t *Transport) SendMessage(ctx context.Context, target, text string) error {
	if target != "" {
		text = "@" + target + " " + text
	}
	t.Client.Say(t.Channel, text)
	return nil
}

// NewClient builds the IRC client for the configured bot account.
func NewClient(cfg *config.Config) *twitch.Client {
	return twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
}

// Run attaches the bot to the client, joins the channel, and blocks until the
// connection ends or ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, client *twitch.Client, b *bot.Bot) error {
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		b.HandleMessage(ctx, toInbound(msg))
	})

	// Close the connection when the root context ends.
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Debug("twitch disconnect", slog.Any("err", err))
		}
	}()

	client.Join(cfg.TwitchChannel)
	slog.Info("joining twitch channel", slog.String("channel", cfg.TwitchChannel))
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	return nil
}

// toInbound normalizes a Twitch message. Emotes become media references so
// the sink can prefetch their images.
func toInbound(msg twitch.PrivateMessage) bot.InboundMessage {
	in := bot.InboundMessage{
		SenderID:    strings.ToLower(msg.User.Name),
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		SentAt:      msg.Time,
	}
	for _, e := range msg.Emotes {
		in.MediaRefs = append(in.MediaRefs, emoteURL(e.ID))
	}
	return in
}

func emoteURL(id string) string {
	return fmt.Sprintf("https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/1.0", id)
}
