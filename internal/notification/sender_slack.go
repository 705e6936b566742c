package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// slackNotifier posts to a Slack incoming webhook. The title is rendered
// bold above the body in a single text block.
type slackNotifier struct {
	cfg    *models.SlackConfig
	client *http.Client
}

func newSlackNotifier(cfg *models.SlackConfig, client *http.Client) *slackNotifier {
	return &slackNotifier{cfg: cfg, client: client}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (n *slackNotifier) Notify(ctx context.Context, message models.NotificationMessage) error {
	body, err := json.Marshal(slackPayload{
		Text: fmt.Sprintf("*%s*\n\n%s", message.Title, message.Body),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding slack payload: %v", ErrConfig, err)
	}
	return postJSON(ctx, n.client, n.cfg.SlackURL, body, nil)
}
