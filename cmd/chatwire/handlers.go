package main

import (
	"log/slog"

	"github.com/jkaninda/chatwire/internal/eventbus"
	"github.com/jkaninda/chatwire/internal/protocol"
)

// registerHandlers wires the connector's built-in subscribers: session
// logging on READY and debug visibility into the message stream. Bot
// logic layers its own subscriptions on top of the same bus.
func registerHandlers(bus *eventbus.Bus, logger *slog.Logger) {
	bus.Subscribe(func(ev *protocol.Event) {
		sessionID, _ := ev.Str("session_id")
		user, _ := ev.Document("user")
		username, _ := user["username"].(string)
		logger.Info("session ready",
			slog.String("session_id", sessionID),
			slog.String("username", username),
		)
	}, protocol.EventReady)

	bus.Subscribe(func(ev *protocol.Event) {
		channelID, _ := ev.Str("channel_id")
		author, _ := ev.Document("author")
		authorID, _ := author["id"].(string)
		logger.Debug("message received",
			slog.Int64("sequence", ev.Seq),
			slog.String("channel_id", channelID),
			slog.String("author_id", authorID),
		)
	}, protocol.EventMessageCreate)

	bus.Subscribe(func(ev *protocol.Event) {
		guildID, _ := ev.Str("id")
		logger.Info("guild available", slog.String("guild_id", guildID))
	}, protocol.EventGuildCreate)
}
