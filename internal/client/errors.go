// Package client wraps the transport layer in chain-specific clients (EVM,
// Stellar) and provides the lazy, reference-shared client pool keyed by
// network.
package client

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by client wrappers. Transport errors are converted
// into one of these before leaving the package.
var (
	ErrConnection  = errors.New("client: connection error")
	ErrRequest     = errors.New("client: request error")
	ErrTransaction = errors.New("client: transaction error")
	ErrClientPool  = errors.New("client: pool error")
	ErrInternal    = errors.New("client: internal error")

	// ErrBlockNotFound is the sentinel behind BlockNotFoundError.
	ErrBlockNotFound = errors.New("client: block not found")
)

// BlockNotFoundError reports a block the chain does not have (yet).
type BlockNotFoundError struct {
	Number uint64
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("client: block not found: %d", e.Number)
}

// Unwrap lets errors.Is(err, ErrBlockNotFound) succeed.
func (e *BlockNotFoundError) Unwrap() error { return ErrBlockNotFound }
