package models

import "fmt"

// Block is the closed union of chain block kinds flowing through the
// pipeline. Exactly one of the pointers is non-nil. The chain families are
// deliberately not unified into a common block shape; consumers switch on
// the populated arm.
type Block struct {
	EVM      *EVMBlock          `json:"evm,omitempty"`
	Stellar  *StellarLedgerData `json:"stellar,omitempty"`
	Midnight *MidnightBlock     `json:"midnight,omitempty"`
	Solana   *SolanaBlock       `json:"solana,omitempty"`
}

// MidnightBlock is a placeholder for the unsupported Midnight chain. Only
// the height is tracked; transaction bodies are not decodable upstream.
type MidnightBlock struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// SolanaBlock is a placeholder for the unsupported Solana chain.
type SolanaBlock struct {
	Slot uint64 `json:"slot"`
	Hash string `json:"blockhash"`
}

// Number returns the logical block height of whichever arm is populated.
func (b Block) Number() uint64 {
	switch {
	case b.EVM != nil:
		return b.EVM.BlockNumber()
	case b.Stellar != nil:
		return uint64(b.Stellar.Ledger.Sequence)
	case b.Midnight != nil:
		return b.Midnight.Height
	case b.Solana != nil:
		return b.Solana.Slot
	}
	return 0
}

// ChainType returns the network type of the populated arm.
func (b Block) ChainType() (NetworkType, error) {
	switch {
	case b.EVM != nil:
		return NetworkEVM, nil
	case b.Stellar != nil:
		return NetworkStellar, nil
	case b.Midnight != nil:
		return NetworkMidnight, nil
	case b.Solana != nil:
		return NetworkSolana, nil
	}
	return "", fmt.Errorf("block has no populated chain arm")
}

// ProcessedBlock is the unit handed from the block workers to the trigger
// handler: one block's worth of monitor matches for one network.
type ProcessedBlock struct {
	BlockNumber uint64         `json:"block_number"`
	NetworkSlug string         `json:"network_slug"`
	Results     []MonitorMatch `json:"processing_results"`
}
