package models

import (
	"encoding/json"
	"fmt"
)

// TransactionStatus is the outcome a transaction condition matches against.
type TransactionStatus string

const (
	StatusAny     TransactionStatus = "Any"
	StatusSuccess TransactionStatus = "Success"
	StatusFailure TransactionStatus = "Failure"
)

// TransactionCondition matches on transaction outcome plus an optional
// expression over the transaction parameter bag (value, from, to, hash).
type TransactionCondition struct {
	Status     TransactionStatus `json:"status"`
	Expression string            `json:"expression,omitempty"`
}

// FunctionCondition matches decoded contract calls by canonical signature
// ("name(type,type,...)") plus an optional expression over the decoded
// arguments.
type FunctionCondition struct {
	Signature  string `json:"signature"`
	Expression string `json:"expression,omitempty"`
}

// EventCondition matches decoded logs/events by canonical signature plus an
// optional expression over the decoded arguments.
type EventCondition struct {
	Signature  string `json:"signature"`
	Expression string `json:"expression,omitempty"`
}

// MatchConditions holds the three parallel condition arrays of a monitor.
// An empty Transactions array matches every transaction; empty Events or
// Functions arrays match nothing in their category. The combining policy
// lives in the filter package.
type MatchConditions struct {
	Transactions []TransactionCondition `json:"transactions"`
	Functions    []FunctionCondition    `json:"functions"`
	Events       []EventCondition       `json:"events"`
}

// AddressWithSpec scopes a monitor to a contract address, optionally with
// the contract's ABI (EVM) used to decode logs and calldata. For Stellar the
// spec is unused and the address alone scopes matching.
type AddressWithSpec struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi,omitempty"`
}

// Monitor is a user-defined watch definition: which networks to observe,
// which addresses are in scope, what to match, and which triggers fire on a
// match. Keyed by Name.
type Monitor struct {
	Name            string            `json:"name"`
	Networks        []string          `json:"networks"`
	Addresses       []AddressWithSpec `json:"addresses"`
	MatchConditions MatchConditions   `json:"match_conditions"`
	Triggers        []string          `json:"triggers"`
	Paused          bool              `json:"paused"`
}

// Validate checks the monitor's own structure. Referential checks against
// the network and trigger sets happen at snapshot assembly in the config
// package.
func (m *Monitor) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("monitor name is required")
	}
	if len(m.Networks) == 0 {
		return fmt.Errorf("monitor %q: at least one network is required", m.Name)
	}
	for _, c := range m.MatchConditions.Transactions {
		switch c.Status {
		case StatusAny, StatusSuccess, StatusFailure:
		default:
			return fmt.Errorf("monitor %q: unknown transaction status %q", m.Name, c.Status)
		}
	}
	for _, c := range m.MatchConditions.Functions {
		if c.Signature == "" {
			return fmt.Errorf("monitor %q: function condition without signature", m.Name)
		}
	}
	for _, c := range m.MatchConditions.Events {
		if c.Signature == "" {
			return fmt.Errorf("monitor %q: event condition without signature", m.Name)
		}
	}
	return nil
}

// StripSpecs returns a copy of the monitor with contract ABIs removed from
// every address entry. Emitted matches carry the stripped form so trigger
// payloads stay small and consistent across chains.
func (m *Monitor) StripSpecs() Monitor {
	out := *m
	out.Addresses = make([]AddressWithSpec, len(m.Addresses))
	for i, a := range m.Addresses {
		out.Addresses[i] = AddressWithSpec{Address: a.Address}
	}
	return out
}
