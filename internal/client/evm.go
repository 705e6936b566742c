package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/transport"
)

// evmLivenessMethod is the minimal call used to probe EVM endpoints.
const evmLivenessMethod = "net_version"

// blockFetchConcurrency bounds the parallel eth_getBlockByNumber calls in
// GetBlocks.
const blockFetchConcurrency = 8

// EVMClient speaks the Ethereum JSON-RPC surface the monitor needs over the
// rotating HTTP carrier.
type EVMClient struct {
	transport transport.Transport
	logger    *zap.Logger
}

// NewEVMClient builds a client for the network's "rpc" URLs. Construction
// probes the endpoints and fails when none is live.
func NewEVMClient(ctx context.Context, network *models.Network, logger *zap.Logger) (*EVMClient, error) {
	t, err := transport.NewHTTPTransport(ctx, network, models.URLTypeRPC, evmLivenessMethod, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &EVMClient{transport: t, logger: logger.Named("evm_client")}, nil
}

// NewEVMClientWithTransport wires an existing transport, used by tests.
func NewEVMClientWithTransport(t transport.Transport, logger *zap.Logger) *EVMClient {
	return &EVMClient{transport: t, logger: logger.Named("evm_client")}
}

// GetLatestBlockNumber returns the current chain head height.
func (c *EVMClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.transport.SendRawRequest(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %v", ErrRequest, err)
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber result: %v", ErrRequest, err)
	}
	n, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber result %q: %v", ErrRequest, hex, err)
	}
	return n, nil
}

// GetBlockByNumber fetches one block with full transaction objects.
func (c *EVMClient) GetBlockByNumber(ctx context.Context, number uint64) (*models.EVMBlock, error) {
	params := []any{hexutil.EncodeUint64(number), true}
	raw, err := c.transport.SendRawRequest(ctx, "eth_getBlockByNumber", params)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getBlockByNumber(%d): %v", ErrRequest, number, err)
	}
	if isNullResult(raw) {
		return nil, &BlockNotFoundError{Number: number}
	}
	var block models.EVMBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("%w: decoding block %d: %v", ErrRequest, number, err)
	}
	return &block, nil
}

// GetBlocks fetches the inclusive range start..end in parallel and returns
// the blocks in ascending order. A block missing at the tail of the range
// (not yet visible on the current endpoint) truncates the result instead of
// failing; any other error aborts.
func (c *EVMClient) GetBlocks(ctx context.Context, start, end uint64) ([]models.Block, error) {
	if start > end {
		return nil, fmt.Errorf("%w: invalid range %d..%d", ErrInternal, start, end)
	}

	count := end - start + 1
	fetched := make([]*models.EVMBlock, count)
	notFound := make([]bool, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blockFetchConcurrency)
	for i := uint64(0); i < count; i++ {
		g.Go(func() error {
			block, err := c.GetBlockByNumber(gctx, start+i)
			if err != nil {
				if errors.Is(err, ErrBlockNotFound) {
					notFound[i] = true
					return nil
				}
				return err
			}
			fetched[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blocks := make([]models.Block, 0, count)
	for i := uint64(0); i < count; i++ {
		if notFound[i] {
			c.logger.Warn("block not yet available, truncating range",
				zap.Uint64("block", start+i),
				zap.Uint64("end", end),
			)
			break
		}
		blocks = append(blocks, models.Block{EVM: fetched[i]})
	}
	return blocks, nil
}

// GetTransactionReceipt fetches the receipt for a transaction hash.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*models.EVMReceipt, error) {
	raw, err := c.transport.SendRawRequest(ctx, "eth_getTransactionReceipt", []any{hash.Hex()})
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getTransactionReceipt(%s): %v", ErrTransaction, hash.Hex(), err)
	}
	if isNullResult(raw) {
		return nil, fmt.Errorf("%w: missing 'result' field for receipt %s", ErrTransaction, hash.Hex())
	}
	var receipt models.EVMReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("%w: decoding receipt %s: %v", ErrTransaction, hash.Hex(), err)
	}
	return &receipt, nil
}

// GetLogs fetches logs for the inclusive block range.
func (c *EVMClient) GetLogs(ctx context.Context, from, to uint64) ([]models.EVMLog, error) {
	params := []any{map[string]string{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to),
	}}
	raw, err := c.transport.SendRawRequest(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getLogs(%d..%d): %v", ErrRequest, from, to, err)
	}
	var logs []models.EVMLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("%w: decoding logs: %v", ErrRequest, err)
	}
	return logs, nil
}

// isNullResult reports whether the raw result field is absent or JSON null.
func isNullResult(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return v == nil
}
