package notify

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_guard/internal/modules/config"
	"trade_guard/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(NewSender, NewNotifier),
	)
}

// NewSender picks Telegram when enabled, the log otherwise.
func NewSender(cfg *config.Config, log *logger.Logger) (Sender, error) {
	if !cfg.Telegram.Enabled {
		return NewStdout(log), nil
	}
	bot, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	log.Info("telegram notifier ready", zap.String("bot", bot.Self.UserName))
	return NewTelegram(bot, cfg.Telegram.ChatID, cfg.Telegram.DisableLinkPrv), nil
}

// NewNotifier starts the delivery worker and registers it as the alert
// sink, so error logs flagged for the operator reach the chat.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, sender Sender, log *logger.Logger) *Notifier {
	n := New(sender, cfg.Telegram.QueueSize, cfg.Telegram.PerMinute, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			n.Start()
			log.SetAlertSink(n)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.SetAlertSink(nil)
			n.Stop(ctx)
			return nil
		},
	})
	return n
}
