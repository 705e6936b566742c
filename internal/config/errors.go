// Package config loads and validates the three configuration sets
// (networks, monitors, triggers) from JSON directories, assembles them into
// immutable snapshots, and hot-reloads on file changes.
package config

import "errors"

var (
	// ErrLoad wraps filesystem and JSON decoding failures.
	ErrLoad = errors.New("config: load error")

	// ErrValidation wraps semantic failures: invalid objects, dangling
	// references, malformed cron schedules or expressions.
	ErrValidation = errors.New("config: validation error")
)
