package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// webhookPayload is the JSON body sent to a generic webhook endpoint. The
// "text" field keeps the payload compatible with chat-style receivers.
type webhookPayload struct {
	Title     string `json:"title"`
	Body      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// webhookNotifier delivers via an outbound HTTP request to a configured
// URL. When a secret is configured the body is signed with HMAC-SHA256 and
// the signature sent as "sha256=<hex>", following the convention used by
// GitHub and Stripe webhooks.
type webhookNotifier struct {
	cfg    *models.WebhookConfig
	client *http.Client
}

func newWebhookNotifier(cfg *models.WebhookConfig, client *http.Client) *webhookNotifier {
	return &webhookNotifier{cfg: cfg, client: client}
}

func (n *webhookNotifier) Notify(ctx context.Context, message models.NotificationMessage) error {
	data, err := json.Marshal(webhookPayload{
		Title:     message.Title,
		Body:      message.Body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding webhook payload: %v", ErrConfig, err)
	}

	method := n.cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, n.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: building webhook request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	if n.cfg.Secret != "" {
		req.Header.Set("X-Signature", "sha256="+hmacSHA256(data, n.cfg.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned status %d", ErrNotifyFailed, resp.StatusCode)
	}
	return nil
}

// hmacSHA256 computes an HMAC-SHA256 signature of data using secret,
// returned as a lowercase hex string.
func hmacSHA256(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
