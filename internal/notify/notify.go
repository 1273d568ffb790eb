// Package notify pushes economy announcements (settlements, big wins) to
// players out of band. Delivery is best effort: a failed push is logged and
// dropped, never retried into the settlement path.
package notify

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"
)

type Event struct {
	Kind string
	Text string
}

type Sink interface {
	Push(ctx context.Context, ev Event)
}

// LogSink writes announcements to the service log. It is the fallback when no
// channel is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Push(_ context.Context, ev Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("announcement", "kind", ev.Kind, "text", ev.Text)
}

// TelegramSink posts announcements to a Telegram channel.
type TelegramSink struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  *slog.Logger
}

// NewTelegramSink connects the bot and resolves the target channel, e.g.
// "@mobcity_feed" or a numeric chat id.
func NewTelegramSink(token, channel string, logger *slog.Logger) (*TelegramSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	chat, err := bot.ChatByUsername(channel)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: bot, chat: chat, log: logger}, nil
}

func (s *TelegramSink) Push(_ context.Context, ev Event) {
	if _, err := s.bot.Send(s.chat, ev.Text); err != nil {
		s.log.Warn("telegram push failed", "kind", ev.Kind, "err", err)
	}
}
