package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EVMBlock mirrors the eth_getBlockByNumber response with full transaction
// objects. Only the fields the filter engine consumes are decoded; the rest
// of the RPC payload is dropped at unmarshal time.
type EVMBlock struct {
	Number       *hexutil.Big     `json:"number"`
	Hash         *common.Hash     `json:"hash"`
	ParentHash   common.Hash      `json:"parentHash"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []EVMTransaction `json:"transactions"`
}

// BlockNumber returns the block height as a plain uint64.
func (b *EVMBlock) BlockNumber() uint64 {
	if b.Number == nil {
		return 0
	}
	return b.Number.ToInt().Uint64()
}

// EVMTransaction is a transaction as embedded in an EVM block.
// To is nil for contract-creation transactions.
type EVMTransaction struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Value    *hexutil.Big    `json:"value"`
	Input    hexutil.Bytes   `json:"input"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Gas      hexutil.Uint64  `json:"gas"`
	Nonce    hexutil.Uint64  `json:"nonce"`
}

// ValueString returns the transaction value as a decimal string ("0" when
// absent), the form used in parameter bags and trigger variables.
func (t *EVMTransaction) ValueString() string {
	if t.Value == nil {
		return "0"
	}
	return t.Value.ToInt().String()
}

// EVMLog is a single log entry from a transaction receipt.
type EVMLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// EVMReceipt mirrors the eth_getTransactionReceipt response.
// Status is 1 for success, 0 for failure (post-Byzantium).
type EVMReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	GasUsed         hexutil.Uint64 `json:"gasUsed"`
	Logs            []EVMLog       `json:"logs"`
}

// Succeeded reports whether the receipt marks the transaction as successful.
func (r *EVMReceipt) Succeeded() bool {
	return uint64(r.Status) == 1
}
