package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

const linePushURL = "https://api.line.me/v2/bot/message/push"

// LineNotifier sends alerts through the LINE Messaging API push endpoint.
type LineNotifier struct {
	token  string
	to     string
	client *http.Client
}

// NewLineNotifier creates a LINE notifier.
// token: channel access token issued for the Messaging API channel
// to: user ID that receives the push messages
func NewLineNotifier(token, to string) *LineNotifier {
	return &LineNotifier{
		token:  token,
		to:     to,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *LineNotifier) Send(ctx context.Context, alert Alert) error {
	// LINE push messages are plain text; Message is already the complete
	// payload, header included.
	payload := map[string]interface{}{
		"to": l.to,
		"messages": []map[string]string{
			{"type": "text", "text": alert.Message},
		},
	}

	header := http.Header{"Authorization": []string{"Bearer " + l.token}}
	if err := postJSON(ctx, l.client, linePushURL, header, payload); err != nil {
		return fmt.Errorf("line: %w", err)
	}
	log.Printf("[line] sent alert: %s", alert.Title)
	return nil
}
