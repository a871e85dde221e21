package notify

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"trade_guard/pkg/logger"
)

type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	noLink bool
}

func NewTelegram(bot *tgbot.BotAPI, chatID int64, disableLinkPreview bool) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, noLink: disableLinkPreview}
}

func (t *Telegram) Send(_ context.Context, text string) error {
	msg := tgbot.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = t.noLink
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "telegram send")
	}
	return nil
}

// Stdout writes notifications to the log when no chat is configured.
type Stdout struct {
	log *logger.Logger
}

func NewStdout(log *logger.Logger) *Stdout { return &Stdout{log: log} }

func (s *Stdout) Send(ctx context.Context, text string) error {
	s.log.InfoContext(ctx, text)
	return nil
}
