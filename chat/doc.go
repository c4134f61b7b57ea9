// Package chat is the Twitch IRC adapter. It connects the bot to the
// configured channel, normalizes inbound messages (sender login, display
// name, timestamp, emote media references) into bot.InboundMessage, and
// implements the bot's Transport by replying in-channel with an @mention.
//
// Credentials: the IRC client requires TWITCH_BOT_USERNAME and an OAuth token
// with chat:read/chat:edit scopes in TWITCH_OAUTH_TOKEN.
package chat
