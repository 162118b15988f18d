package notification

import (
	"context"
	"errors"
)

// MultiNotifier fans one alert out to every configured channel. Every sink
// is attempted even when an earlier one fails; the failures come back
// joined so a partial outage stays visible.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier wraps the given sinks.
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build assembles the notifier set from whichever channels are configured.
// Credentials select channels: Telegram needs token and chat ID, LINE needs
// token and target user, a webhook needs only its URL. With nothing
// configured the process log is the only sink.
func Build(telegramToken, telegramChatID, lineToken, lineTo, webhookURL string) Notifier {
	var sinks []Notifier
	if telegramToken != "" && telegramChatID != "" {
		sinks = append(sinks, NewTelegramNotifier(telegramToken, telegramChatID))
	}
	if lineToken != "" && lineTo != "" {
		sinks = append(sinks, NewLineNotifier(lineToken, lineTo))
	}
	if webhookURL != "" {
		sinks = append(sinks, NewWebhookNotifier(webhookURL))
	}

	switch len(sinks) {
	case 0:
		return NewLogNotifier()
	case 1:
		return sinks[0]
	default:
		return NewMultiNotifier(sinks...)
	}
}
