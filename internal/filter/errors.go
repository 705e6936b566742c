// Package filter implements the match engine: chain-specialized filters
// that decode transactions, logs, and contract calls from a block and
// evaluate monitor conditions, including the boolean expression language,
// against typed parameter bags.
package filter

import "errors"

// Sentinel errors for filter-level preconditions. Per-condition evaluation
// failures are soft (they evaluate to false) and never surface as errors.
var (
	// ErrBlockTypeMismatch is returned when a block's chain arm does not
	// match the network it was attributed to.
	ErrBlockTypeMismatch = errors.New("filter: block type mismatch")

	// ErrNetwork wraps client failures during filtering (e.g. receipt
	// fetches when every endpoint is down).
	ErrNetwork = errors.New("filter: network error")

	// ErrInternal covers violated internal invariants.
	ErrInternal = errors.New("filter: internal error")
)
