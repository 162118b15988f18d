package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	// Plain text, no parse_mode: payloads contain parentheses and periods
	// that MarkdownV2 would require escaping, and a mangled alert is worse
	// than an unstyled one.
	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    fmt.Sprintf("%s %s", emoji, alert.Message),
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	if err := postJSON(ctx, t.client, url, nil, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}
