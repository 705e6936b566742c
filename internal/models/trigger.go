package models

import (
	"encoding/json"
	"fmt"
)

// TriggerType selects the notification sink a trigger dispatches to.
type TriggerType string

const (
	TriggerSlack    TriggerType = "slack"
	TriggerDiscord  TriggerType = "discord"
	TriggerTelegram TriggerType = "telegram"
	TriggerEmail    TriggerType = "email"
	TriggerWebhook  TriggerType = "webhook"
	TriggerScript   TriggerType = "script"
)

// NotificationMessage is the title/body pair every trigger carries. The body
// supports ${var} interpolation against the match variable bag.
type NotificationMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SlackConfig posts to a Slack incoming webhook.
type SlackConfig struct {
	SlackURL string              `json:"slack_url"`
	Message  NotificationMessage `json:"message"`
}

// DiscordConfig posts to a Discord webhook.
type DiscordConfig struct {
	DiscordURL string              `json:"discord_url"`
	Message    NotificationMessage `json:"message"`
}

// TelegramConfig sends via the Telegram bot API.
type TelegramConfig struct {
	Token             string              `json:"token"`
	ChatID            string              `json:"chat_id"`
	DisableWebPreview bool                `json:"disable_web_preview,omitempty"`
	Message           NotificationMessage `json:"message"`
}

// EmailConfig sends via SMTP. Port 465 uses implicit TLS; other ports use
// plaintext or STARTTLS negotiation.
type EmailConfig struct {
	Host       string              `json:"host"`
	Port       int                 `json:"port"`
	Username   string              `json:"username"`
	Password   string              `json:"password"`
	Sender     string              `json:"sender"`
	Recipients []string            `json:"recipients"`
	Message    NotificationMessage `json:"message"`
}

// WebhookConfig posts a generic JSON payload, optionally signed with
// HMAC-SHA256 when Secret is set.
type WebhookConfig struct {
	URL     string              `json:"url"`
	Method  string              `json:"method,omitempty"`
	Secret  string              `json:"secret,omitempty"`
	Headers map[string]string   `json:"headers,omitempty"`
	Message NotificationMessage `json:"message"`
}

// ScriptConfig invokes an executable; the last line of stdout must be
// "true" or "false".
type ScriptConfig struct {
	ScriptPath string              `json:"script_path"`
	Arguments  []string            `json:"arguments,omitempty"`
	TimeoutMS  uint64              `json:"timeout_ms,omitempty"`
	Message    NotificationMessage `json:"message"`
}

// Trigger is a named notification sink configuration. Exactly one of the
// typed config pointers is non-nil, selected by Type.
type Trigger struct {
	Name string      `json:"name"`
	Type TriggerType `json:"trigger_type"`

	Slack    *SlackConfig    `json:"-"`
	Discord  *DiscordConfig  `json:"-"`
	Telegram *TelegramConfig `json:"-"`
	Email    *EmailConfig    `json:"-"`
	Webhook  *WebhookConfig  `json:"-"`
	Script   *ScriptConfig   `json:"-"`
}

// triggerEnvelope is the on-disk shape: a type tag plus a raw config blob
// decoded into the variant selected by the tag.
type triggerEnvelope struct {
	Name   string          `json:"name"`
	Type   TriggerType     `json:"trigger_type"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the tagged trigger representation.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var env triggerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	t.Name = env.Name
	t.Type = env.Type

	if len(env.Config) == 0 {
		return fmt.Errorf("trigger %q: missing config", env.Name)
	}

	switch env.Type {
	case TriggerSlack:
		t.Slack = &SlackConfig{}
		return json.Unmarshal(env.Config, t.Slack)
	case TriggerDiscord:
		t.Discord = &DiscordConfig{}
		return json.Unmarshal(env.Config, t.Discord)
	case TriggerTelegram:
		t.Telegram = &TelegramConfig{}
		return json.Unmarshal(env.Config, t.Telegram)
	case TriggerEmail:
		t.Email = &EmailConfig{}
		return json.Unmarshal(env.Config, t.Email)
	case TriggerWebhook:
		t.Webhook = &WebhookConfig{}
		return json.Unmarshal(env.Config, t.Webhook)
	case TriggerScript:
		t.Script = &ScriptConfig{}
		return json.Unmarshal(env.Config, t.Script)
	default:
		return fmt.Errorf("trigger %q: unknown trigger_type %q", env.Name, env.Type)
	}
}

// MarshalJSON re-encodes the trigger in its tagged on-disk shape, so a
// loaded trigger round-trips through serialization.
func (t Trigger) MarshalJSON() ([]byte, error) {
	var cfg any
	switch t.Type {
	case TriggerSlack:
		cfg = t.Slack
	case TriggerDiscord:
		cfg = t.Discord
	case TriggerTelegram:
		cfg = t.Telegram
	case TriggerEmail:
		cfg = t.Email
	case TriggerWebhook:
		cfg = t.Webhook
	case TriggerScript:
		cfg = t.Script
	default:
		return nil, fmt.Errorf("trigger %q: unknown trigger_type %q", t.Name, t.Type)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(triggerEnvelope{Name: t.Name, Type: t.Type, Config: raw})
}

// MessageTemplate returns the title/body template configured on the trigger.
func (t *Trigger) MessageTemplate() (NotificationMessage, error) {
	switch t.Type {
	case TriggerSlack:
		return t.Slack.Message, nil
	case TriggerDiscord:
		return t.Discord.Message, nil
	case TriggerTelegram:
		return t.Telegram.Message, nil
	case TriggerEmail:
		return t.Email.Message, nil
	case TriggerWebhook:
		return t.Webhook.Message, nil
	case TriggerScript:
		return t.Script.Message, nil
	}
	return NotificationMessage{}, fmt.Errorf("trigger %q: unknown trigger_type %q", t.Name, t.Type)
}

// Validate checks that the variant config matching Type is present and
// carries its required fields.
func (t *Trigger) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("trigger name is required")
	}
	switch t.Type {
	case TriggerSlack:
		if t.Slack == nil || t.Slack.SlackURL == "" {
			return fmt.Errorf("trigger %q: slack_url is required", t.Name)
		}
	case TriggerDiscord:
		if t.Discord == nil || t.Discord.DiscordURL == "" {
			return fmt.Errorf("trigger %q: discord_url is required", t.Name)
		}
	case TriggerTelegram:
		if t.Telegram == nil || t.Telegram.Token == "" || t.Telegram.ChatID == "" {
			return fmt.Errorf("trigger %q: token and chat_id are required", t.Name)
		}
	case TriggerEmail:
		if t.Email == nil || t.Email.Host == "" || t.Email.Sender == "" || len(t.Email.Recipients) == 0 {
			return fmt.Errorf("trigger %q: host, sender, and recipients are required", t.Name)
		}
	case TriggerWebhook:
		if t.Webhook == nil || t.Webhook.URL == "" {
			return fmt.Errorf("trigger %q: url is required", t.Name)
		}
	case TriggerScript:
		if t.Script == nil || t.Script.ScriptPath == "" {
			return fmt.Errorf("trigger %q: script_path is required", t.Name)
		}
	default:
		return fmt.Errorf("trigger %q: unknown trigger_type %q", t.Name, t.Type)
	}
	return nil
}
