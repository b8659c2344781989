package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"postovik/internal/config"
	"postovik/internal/events"
	"postovik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// watchAlertThreshold число подряд неуспешных циклов до алерта
const watchAlertThreshold = 3

// TelegramNotifier sends failure alerts to an ops chat. A nil notifier is
// valid and does nothing, so callers never have to branch on configuration.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger

	watchFailures atomic.Int64
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	botAPI.Debug = cfg.Debug

	logger.Info().Str("bot_username", botAPI.Self.UserName).Msg("Telegram notifier ready")

	return &TelegramNotifier{
		bot:    botAPI,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// NotifyFailure pushes one alert message to the ops chat.
func (t *TelegramNotifier) NotifyFailure(ctx context.Context, subject, detail string) error {
	if t == nil || t.bot == nil {
		return nil
	}

	text := fmt.Sprintf("❌ %s\n\n%s", subject, detail)
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("Failed to send telegram alert")
		return err
	}
	return nil
}

// SubscribeTo wires the notifier into the event bus: every failed job
// alerts immediately, watch cycles alert only after several consecutive
// errors so a single flaky poll does not page anyone.
func (t *TelegramNotifier) SubscribeTo(bus *events.EventBus) {
	if t == nil || bus == nil {
		return
	}

	bus.Subscribe(events.EventJobFailed, func(event *events.Event) error {
		var payload events.JobEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		// Сбои циклов мониторинга алертятся через watch_cycle с порогом
		if payload.Kind == models.KindFolderWatch {
			return nil
		}
		return t.NotifyFailure(context.Background(),
			fmt.Sprintf("Job failed: %s", payload.Kind),
			fmt.Sprintf("Job %s\n%s", payload.JobID, payload.Error))
	})

	bus.Subscribe(events.EventWatchCycle, func(event *events.Event) error {
		var payload events.WatchCyclePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}

		if payload.Error == "" {
			t.watchFailures.Store(0)
			return nil
		}

		if n := t.watchFailures.Add(1); n == watchAlertThreshold {
			return t.NotifyFailure(context.Background(),
				"Folder watch keeps failing",
				fmt.Sprintf("%d cycles in a row, last error:\n%s", n, payload.Error))
		}
		return nil
	})
}
