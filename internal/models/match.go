package models

// MatchParam is one decoded event or function argument carried with a match.
// Value is always the string rendering used for expressions and template
// interpolation; Kind is the chain-level type tag that drives expression
// coercion (uint256, address, bool, ... for EVM; Address, I128, Symbol, ...
// for Stellar).
type MatchParam struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Kind    string `json:"kind"`
	Indexed bool   `json:"indexed,omitempty"`
}

// MatchParamsMap is a single decoded event or function occurrence: its
// canonical signature plus the decoded argument list. HexSignature carries
// the topic0 hash for EVM events and is empty elsewhere.
type MatchParamsMap struct {
	Signature    string       `json:"signature"`
	Args         []MatchParam `json:"args,omitempty"`
	HexSignature string       `json:"hex_signature,omitempty"`
}

// MatchArguments is the bag of decoded occurrences attached to a match,
// split by category. Used both for expression evaluation and for building
// the trigger interpolation context.
type MatchArguments struct {
	Events    []MatchParamsMap `json:"events,omitempty"`
	Functions []MatchParamsMap `json:"functions,omitempty"`
}

// EVMMonitorMatch is one monitor/transaction pair that satisfied the
// monitor's conditions on an EVM network. Monitor is carried with ABIs
// stripped.
type EVMMonitorMatch struct {
	Monitor       Monitor          `json:"monitor"`
	Transaction   EVMTransaction   `json:"transaction"`
	Receipt       EVMReceipt       `json:"receipt"`
	NetworkSlug   string           `json:"network_slug"`
	MatchedOn     MatchConditions  `json:"matched_on"`
	MatchedOnArgs *MatchArguments  `json:"matched_on_args,omitempty"`
}

// StellarMonitorMatch is one monitor/transaction pair that satisfied the
// monitor's conditions on a Stellar network. Monitor is carried with
// contract specs stripped, mirroring the EVM shape.
type StellarMonitorMatch struct {
	Monitor       Monitor            `json:"monitor"`
	Transaction   StellarTransaction `json:"transaction"`
	Ledger        StellarLedger      `json:"ledger"`
	NetworkSlug   string             `json:"network_slug"`
	MatchedOn     MatchConditions    `json:"matched_on"`
	MatchedOnArgs *MatchArguments    `json:"matched_on_args,omitempty"`
}

// MonitorMatch is the closed union of chain match kinds. Exactly one arm is
// non-nil.
type MonitorMatch struct {
	EVM     *EVMMonitorMatch     `json:"evm,omitempty"`
	Stellar *StellarMonitorMatch `json:"stellar,omitempty"`
}

// MonitorName returns the name of the monitor that produced the match.
func (m MonitorMatch) MonitorName() string {
	switch {
	case m.EVM != nil:
		return m.EVM.Monitor.Name
	case m.Stellar != nil:
		return m.Stellar.Monitor.Name
	}
	return ""
}

// TriggerNames returns the trigger list of the monitor that produced the
// match.
func (m MonitorMatch) TriggerNames() []string {
	switch {
	case m.EVM != nil:
		return m.EVM.Monitor.Triggers
	case m.Stellar != nil:
		return m.Stellar.Monitor.Triggers
	}
	return nil
}
