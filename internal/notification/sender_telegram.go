package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// telegramAPIBase is the bot API host; overridable in tests.
var telegramAPIBase = "https://api.telegram.org"

// telegramNotifier sends through the Telegram bot API with MarkdownV2
// formatting. Title and body are escaped so interpolated values cannot
// break the markup.
type telegramNotifier struct {
	cfg    *models.TelegramConfig
	client *http.Client
}

func newTelegramNotifier(cfg *models.TelegramConfig, client *http.Client) *telegramNotifier {
	return &telegramNotifier{cfg: cfg, client: client}
}

type telegramPayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (n *telegramNotifier) Notify(ctx context.Context, message models.NotificationMessage) error {
	text := fmt.Sprintf("*%s*\n\n%s",
		escapeMarkdownV2(message.Title),
		escapeMarkdownV2(message.Body))

	body, err := json.Marshal(telegramPayload{
		ChatID:                n.cfg.ChatID,
		Text:                  text,
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: n.cfg.DisableWebPreview,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding telegram payload: %v", ErrConfig, err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, n.cfg.Token)
	return postJSON(ctx, n.client, url, body, nil)
}

// telegramSpecials are the characters MarkdownV2 requires escaping.
const telegramSpecials = "_*[]()~`>#+-=|{}.!"

func escapeMarkdownV2(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(telegramSpecials, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
