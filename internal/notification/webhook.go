package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts to a generic HTTP endpoint as JSON. The
// payload carries level, title, message and a send timestamp; what to do
// with them is the receiver's call.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given endpoint.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := map[string]interface{}{
		"source":  "momentum-systemv1",
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err := postJSON(ctx, w.client, w.url, nil, payload); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	log.Printf("[webhook] sent alert to %s: %s", w.url, alert.Title)
	return nil
}
