package models

// StellarLedger mirrors a single entry of the Soroban RPC getLedgers
// response. Sequence is the logical block height.
type StellarLedger struct {
	Sequence        uint32 `json:"sequence"`
	Hash            string `json:"hash"`
	LedgerCloseTime string `json:"ledgerCloseTime"`
	HeaderXDR       string `json:"headerXdr,omitempty"`
	MetadataXDR     string `json:"metadataXdr,omitempty"`
}

// StellarTransaction mirrors a single entry of the Soroban RPC
// getTransactions response. EnvelopeXDR is the base64-encoded transaction
// envelope the filter decodes to extract contract invocations.
type StellarTransaction struct {
	Hash        string `json:"txHash"`
	Status      string `json:"status"`
	Ledger      uint32 `json:"ledger"`
	EnvelopeXDR string `json:"envelopeXdr,omitempty"`
	ResultXDR   string `json:"resultXdr,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// StellarTransactionStatusSuccess is the RPC status string for a successful
// Stellar transaction.
const StellarTransactionStatusSuccess = "SUCCESS"

// Succeeded reports whether the RPC marked the transaction successful.
func (t *StellarTransaction) Succeeded() bool {
	return t.Status == StellarTransactionStatusSuccess
}

// StellarEvent mirrors a single entry of the Soroban RPC getEvents response
// with contract-type filtering. Topic entries and Value are base64 XDR
// ScVals.
type StellarEvent struct {
	Type            string   `json:"type"`
	Ledger          uint32   `json:"ledger"`
	ContractID      string   `json:"contractId"`
	TransactionHash string   `json:"txHash"`
	Topic           []string `json:"topic"`
	Value           string   `json:"value"`
}

// StellarLedgerData bundles a ledger with the transactions and contract
// events that belong to its sequence, as assembled by the Stellar client
// before filtering.
type StellarLedgerData struct {
	Ledger       StellarLedger        `json:"ledger"`
	Transactions []StellarTransaction `json:"transactions"`
	Events       []StellarEvent       `json:"events"`
}
