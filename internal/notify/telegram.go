package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tectonica/quakewatch/internal/models"
)

// Telegram delivers alerts to an operations channel via the Telegram Bot
// API. It implements Notifier.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// Send formats and delivers the alert with linear-backoff retry. Retrying
// is internal to the collaborator; the pipeline itself never retries.
func (t *Telegram) Send(ctx context.Context, alert models.Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, t.formatMessage(alert))
	msg.ParseMode = "MarkdownV2"
	if alert.Priority == models.PriorityNormal {
		msg.DisableNotification = true
	}

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// formatMessage renders the alert as a Telegram MarkdownV2 message.
func (t *Telegram) formatMessage(alert models.Alert) string {
	emoji := "ℹ️"
	switch alert.Tier {
	case models.TierCritical:
		emoji = "🚨"
	case models.TierWarning:
		emoji = "⚠️"
	}
	return fmt.Sprintf("%s *%s*\n%s",
		emoji, escapeMarkdownV2(alert.Title), escapeMarkdownV2(alert.Body))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
