package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]string{
		"monitor_name":     "usdc-transfers",
		"transaction_hash": "0xabc",
		"event_0_value":    "8181710000",
	}

	out := Interpolate("Monitor ${monitor_name} matched tx ${transaction_hash} (${event_0_value})", vars)
	assert.Equal(t, "Monitor usdc-transfers matched tx 0xabc (8181710000)", out)

	// Unknown keys stay visible.
	assert.Equal(t, "hello ${missing}", Interpolate("hello ${missing}", vars))
	// No variables, template unchanged.
	assert.Equal(t, "plain", Interpolate("plain", nil))
	// Unterminated placeholder is left alone.
	assert.Equal(t, "broken ${tail", Interpolate("broken ${tail", vars))
}

func TestSlackNotifierPostsBoldTitle(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newSlackNotifier(&models.SlackConfig{SlackURL: srv.URL}, srv.Client())
	err := n.Notify(context.Background(), models.NotificationMessage{Title: "Alert", Body: "details"})
	require.NoError(t, err)
	assert.Equal(t, "*Alert*\n\ndetails", got.Text)
}

func TestWebhookNotifierSignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newWebhookNotifier(&models.WebhookConfig{
		URL:     srv.URL,
		Secret:  "s3cret",
		Headers: map[string]string{"X-Custom": "yes"},
	}, srv.Client())
	err := n.Notify(context.Background(), models.NotificationMessage{Title: "Alert", Body: "details"})
	require.NoError(t, err)

	assert.Equal(t, "sha256="+hmacSHA256(gotBody, "s3cret"), gotSig)
}

func TestWebhookNotifierNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := newWebhookNotifier(&models.WebhookConfig{URL: srv.URL}, srv.Client())
	err := n.Notify(context.Background(), models.NotificationMessage{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, ErrNotifyFailed)
}

func TestTelegramEscaping(t *testing.T) {
	assert.Equal(t, `value \> 100 \(critical\)\!`, escapeMarkdownV2("value > 100 (critical)!"))
	assert.Equal(t, `plain text`, escapeMarkdownV2("plain text"))
}

func TestTelegramNotifierSendsToBotEndpoint(t *testing.T) {
	var gotPath string
	var got telegramPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	old := telegramAPIBase
	telegramAPIBase = srv.URL
	defer func() { telegramAPIBase = old }()

	n := newTelegramNotifier(&models.TelegramConfig{Token: "123:abc", ChatID: "-100", DisableWebPreview: true}, srv.Client())
	err := n.Notify(context.Background(), models.NotificationMessage{Title: "Alert", Body: "details"})
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "-100", got.ChatID)
	assert.Equal(t, "MarkdownV2", got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func TestScriptNotifierTrue(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\ncat >/dev/null\necho doing work\necho true\n")
	n := newScriptNotifier(&models.ScriptConfig{ScriptPath: path}, zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), models.NotificationMessage{Body: "payload"}))
}

func TestScriptNotifierFalseIsNotAnError(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\ncat >/dev/null\necho false\n")
	n := newScriptNotifier(&models.ScriptConfig{ScriptPath: path}, zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), models.NotificationMessage{}))
}

func TestScriptNotifierParseError(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\ncat >/dev/null\necho maybe\n")
	n := newScriptNotifier(&models.ScriptConfig{ScriptPath: path}, zap.NewNop())
	assert.ErrorIs(t, n.Notify(context.Background(), models.NotificationMessage{}), ErrScriptParse)
}

func TestScriptNotifierMissingScript(t *testing.T) {
	n := newScriptNotifier(&models.ScriptConfig{ScriptPath: "/nonexistent/script.sh"}, zap.NewNop())
	assert.ErrorIs(t, n.Notify(context.Background(), models.NotificationMessage{}), ErrScriptNotFound)
}

func TestScriptNotifierTimeout(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nsleep 5\necho true\n")
	n := newScriptNotifier(&models.ScriptConfig{ScriptPath: path, TimeoutMS: 50}, zap.NewNop())
	assert.ErrorIs(t, n.Notify(context.Background(), models.NotificationMessage{}), ErrScriptExecution)
}

func TestNewNotifierDispatch(t *testing.T) {
	logger := zap.NewNop()

	n, err := NewNotifier(&models.Trigger{
		Name: "s", Type: models.TriggerSlack,
		Slack: &models.SlackConfig{SlackURL: "https://hooks.slack.com/x"},
	}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &slackNotifier{}, n)

	_, err = NewNotifier(&models.Trigger{Name: "bad", Type: models.TriggerSlack}, nil, logger)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewNotifier(&models.Trigger{Name: "u", Type: "pager"}, nil, logger)
	assert.ErrorIs(t, err, ErrConfig)
}
