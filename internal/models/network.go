// Package models defines the core data types shared across the monitor:
// network and monitor configuration, trigger definitions, chain-specific
// block/transaction/event shapes, and the match types produced by the
// filter engine. All types here are immutable after configuration load;
// services receive snapshots and never mutate them.
package models

import "fmt"

// NetworkType identifies which chain family a network belongs to.
// It selects the client, transport, and filter implementations.
type NetworkType string

const (
	NetworkEVM      NetworkType = "EVM"
	NetworkStellar  NetworkType = "Stellar"
	NetworkMidnight NetworkType = "Midnight"
	NetworkSolana   NetworkType = "Solana"
)

// Valid reports whether t is one of the known chain families.
func (t NetworkType) Valid() bool {
	switch t {
	case NetworkEVM, NetworkStellar, NetworkMidnight, NetworkSolana:
		return true
	}
	return false
}

// RPC URL kinds. Endpoint construction filters the network's URL list by
// kind, so a single network can carry JSON-RPC, Horizon, and WebSocket
// endpoints side by side.
const (
	URLTypeRPC     = "rpc"
	URLTypeHorizon = "horizon"
	URLTypeWSRPC   = "ws_rpc"
)

// RPCURL is a single weighted endpoint entry. Entries with Weight == 0 are
// configured but excluded from selection.
type RPCURL struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Weight int    `json:"weight"`
}

// Network describes one chain to monitor. Slug is the primary key used
// everywhere (storage, tracker, client pool, monitor references).
type Network struct {
	Slug               string      `json:"slug"`
	Name               string      `json:"name"`
	Type               NetworkType `json:"network_type"`
	RPCURLs            []RPCURL    `json:"rpc_urls"`
	ChainID            *uint64     `json:"chain_id,omitempty"`
	NetworkPassphrase  *string     `json:"network_passphrase,omitempty"`
	BlockTimeMS        uint64      `json:"block_time_ms"`
	ConfirmationBlocks uint64      `json:"confirmation_blocks"`
	CronSchedule       string      `json:"cron_schedule"`
	MaxPastBlocks      *uint64     `json:"max_past_blocks,omitempty"`
	StoreBlocks        *bool       `json:"store_blocks,omitempty"`
}

// URLsByType returns the network's endpoint URLs of the given kind, with
// zero-weight entries removed. Order is preserved; weighting is applied by
// the transport layer.
func (n *Network) URLsByType(urlType string) []RPCURL {
	var out []RPCURL
	for _, u := range n.RPCURLs {
		if u.Type == urlType && u.Weight > 0 {
			out = append(out, u)
		}
	}
	return out
}

// ShouldStoreBlocks reports whether full block dumps are enabled for this
// network. Defaults to false when the field is absent.
func (n *Network) ShouldStoreBlocks() bool {
	return n.StoreBlocks != nil && *n.StoreBlocks
}

// Validate checks the structural invariants of a network definition.
func (n *Network) Validate() error {
	if n.Slug == "" {
		return fmt.Errorf("network slug is required")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("network %q: unknown network_type %q", n.Slug, n.Type)
	}
	if len(n.RPCURLs) == 0 {
		return fmt.Errorf("network %q: at least one rpc_url is required", n.Slug)
	}
	for _, u := range n.RPCURLs {
		if u.URL == "" {
			return fmt.Errorf("network %q: rpc_url with empty url", n.Slug)
		}
		switch u.Type {
		case URLTypeRPC, URLTypeHorizon, URLTypeWSRPC:
		default:
			return fmt.Errorf("network %q: unknown rpc_url type %q", n.Slug, u.Type)
		}
		if u.Weight < 0 || u.Weight > 100 {
			return fmt.Errorf("network %q: rpc_url weight %d out of range 0..=100", n.Slug, u.Weight)
		}
	}
	if n.CronSchedule == "" {
		return fmt.Errorf("network %q: cron_schedule is required", n.Slug)
	}
	return nil
}
