package client

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/transport"
)

// fakeTransport routes SendRawRequest to a per-method handler.
type fakeTransport struct {
	handler func(method string, params any) (json.RawMessage, error)
}

func (f *fakeTransport) CurrentURL() string { return "http://fake" }

func (f *fakeTransport) SendRawRequest(_ context.Context, method string, params any) (json.RawMessage, error) {
	return f.handler(method, params)
}

func (f *fakeTransport) SetRetryPolicy(transport.RetryPolicy) error { return nil }

func evmBlockJSON(n uint64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"number": "0x%x",
		"hash": "0x%064x",
		"parentHash": "0x%064x",
		"timestamp": "0x5f5e100",
		"transactions": []
	}`, n, n, n-1))
}

func TestGetLatestBlockNumber(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{
		handler: func(method string, _ any) (json.RawMessage, error) {
			require.Equal(t, "eth_blockNumber", method)
			return json.RawMessage(`"0x64"`), nil
		},
	}, zap.NewNop())

	n, err := c.GetLatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)
}

func TestGetBlocksOrderedAscending(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{
		handler: func(method string, params any) (json.RawMessage, error) {
			require.Equal(t, "eth_getBlockByNumber", method)
			var n uint64
			fmt.Sscanf(params.([]any)[0].(string), "0x%x", &n) //nolint:errcheck
			return evmBlockJSON(n), nil
		},
	}, zap.NewNop())

	blocks, err := c.GetBlocks(context.Background(), 10, 25)
	require.NoError(t, err)
	require.Len(t, blocks, 16)
	for i, b := range blocks {
		assert.Equal(t, uint64(10+i), b.Number())
	}
}

func TestGetBlocksTruncatesAtMissingTail(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{
		handler: func(_ string, params any) (json.RawMessage, error) {
			var n uint64
			fmt.Sscanf(params.([]any)[0].(string), "0x%x", &n) //nolint:errcheck
			if n >= 14 {
				return json.RawMessage(`null`), nil
			}
			return evmBlockJSON(n), nil
		},
	}, zap.NewNop())

	blocks, err := c.GetBlocks(context.Background(), 10, 15)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Equal(t, uint64(13), blocks[len(blocks)-1].Number())
}

func TestGetBlocksInvalidRange(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{}, zap.NewNop())
	_, err := c.GetBlocks(context.Background(), 20, 10)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestGetBlockByNumberNotFound(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{
		handler: func(string, any) (json.RawMessage, error) {
			return json.RawMessage(`null`), nil
		},
	}, zap.NewNop())

	_, err := c.GetBlockByNumber(context.Background(), 42)
	assert.ErrorIs(t, err, ErrBlockNotFound)

	var nf *BlockNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, uint64(42), nf.Number)
}

func TestGetTransactionReceiptNullResult(t *testing.T) {
	c := NewEVMClientWithTransport(&fakeTransport{
		handler: func(string, any) (json.RawMessage, error) {
			return nil, nil
		},
	}, zap.NewNop())

	_, err := c.GetTransactionReceipt(context.Background(), [32]byte{0x01})
	assert.ErrorIs(t, err, ErrTransaction)
}
