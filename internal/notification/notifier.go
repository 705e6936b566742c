package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// Notifier delivers one already-interpolated message to a sink.
type Notifier interface {
	Notify(ctx context.Context, message models.NotificationMessage) error
}

// defaultHTTPTimeout bounds every outbound sink request.
const defaultHTTPTimeout = 10 * time.Second

// NewNotifier builds the sink for a trigger. The shared HTTP client is used
// by all webhook-style sinks; pass nil to use a default client.
func NewNotifier(trigger *models.Trigger, client *http.Client, logger *zap.Logger) (Notifier, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	switch trigger.Type {
	case models.TriggerSlack:
		if trigger.Slack == nil {
			return nil, fmt.Errorf("%w: trigger %q has no slack config", ErrConfig, trigger.Name)
		}
		return newSlackNotifier(trigger.Slack, client), nil
	case models.TriggerDiscord:
		if trigger.Discord == nil {
			return nil, fmt.Errorf("%w: trigger %q has no discord config", ErrConfig, trigger.Name)
		}
		return newDiscordNotifier(trigger.Discord, client), nil
	case models.TriggerTelegram:
		if trigger.Telegram == nil {
			return nil, fmt.Errorf("%w: trigger %q has no telegram config", ErrConfig, trigger.Name)
		}
		return newTelegramNotifier(trigger.Telegram, client), nil
	case models.TriggerEmail:
		if trigger.Email == nil {
			return nil, fmt.Errorf("%w: trigger %q has no email config", ErrConfig, trigger.Name)
		}
		return newEmailNotifier(trigger.Email), nil
	case models.TriggerWebhook:
		if trigger.Webhook == nil {
			return nil, fmt.Errorf("%w: trigger %q has no webhook config", ErrConfig, trigger.Name)
		}
		return newWebhookNotifier(trigger.Webhook, client), nil
	case models.TriggerScript:
		if trigger.Script == nil {
			return nil, fmt.Errorf("%w: trigger %q has no script config", ErrConfig, trigger.Name)
		}
		return newScriptNotifier(trigger.Script, logger), nil
	default:
		return nil, fmt.Errorf("%w: trigger %q has unknown type %q", ErrConfig, trigger.Name, trigger.Type)
	}
}

// postJSON is the shared HTTP delivery path for webhook-style sinks.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, decorate func(*http.Request)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d from %s", ErrNotifyFailed, resp.StatusCode, url)
	}
	return nil
}
