// Package notification delivers trigger payloads to their sinks: chat
// webhooks (Slack, Discord), the Telegram bot API, SMTP email, generic
// HTTP webhooks, and local scripts.
package notification

import "errors"

// Sentinel errors returned by notifiers. Callers use errors.Is for
// comparison; delivery failures are logged per trigger and never abort a
// block tick.
var (
	// ErrNetwork is returned when a sink could not be reached.
	ErrNetwork = errors.New("notification: network error")

	// ErrConfig is returned when a trigger's sink configuration is missing
	// or incomplete at dispatch time.
	ErrConfig = errors.New("notification: invalid configuration")

	// ErrNotifyFailed is returned when the sink was reached but refused the
	// delivery.
	ErrNotifyFailed = errors.New("notification: delivery failed")
)

// Script execution errors, kept separate so callers can distinguish a
// missing script from a script that ran and misbehaved.
var (
	// ErrScriptNotFound is returned when the configured script path does not
	// exist.
	ErrScriptNotFound = errors.New("notification: script not found")

	// ErrScriptExecution is returned when the script exits non-zero or times
	// out.
	ErrScriptExecution = errors.New("notification: script execution failed")

	// ErrScriptParse is returned when the script's last stdout line is
	// neither "true" nor "false".
	ErrScriptParse = errors.New("notification: unparseable script output")
)
