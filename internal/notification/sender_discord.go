package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// discordNotifier posts to a Discord webhook using the content field.
type discordNotifier struct {
	cfg    *models.DiscordConfig
	client *http.Client
}

func newDiscordNotifier(cfg *models.DiscordConfig, client *http.Client) *discordNotifier {
	return &discordNotifier{cfg: cfg, client: client}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (n *discordNotifier) Notify(ctx context.Context, message models.NotificationMessage) error {
	body, err := json.Marshal(discordPayload{
		Content: fmt.Sprintf("**%s**\n\n%s", message.Title, message.Body),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding discord payload: %v", ErrConfig, err)
	}
	return postJSON(ctx, n.client, n.cfg.DiscordURL, body, nil)
}
