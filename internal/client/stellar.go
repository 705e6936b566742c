package client

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/transport"
)

// stellarLivenessMethod probes Soroban RPC endpoints.
const stellarLivenessMethod = "getLatestLedger"

// stellarPageLimit caps every paginated Soroban RPC request.
const stellarPageLimit = 200

// StellarClient speaks the Soroban JSON-RPC surface over the rotating HTTP
// carrier. Pagination via result cursors is handled internally; callers see
// whole ledger ranges.
type StellarClient struct {
	transport transport.Transport
	logger    *zap.Logger
}

// NewStellarClient builds a client for the network's "rpc" URLs.
func NewStellarClient(ctx context.Context, network *models.Network, logger *zap.Logger) (*StellarClient, error) {
	t, err := transport.NewHTTPTransport(ctx, network, models.URLTypeRPC, stellarLivenessMethod, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &StellarClient{transport: t, logger: logger.Named("stellar_client")}, nil
}

// NewStellarClientWithTransport wires an existing transport, used by tests.
func NewStellarClientWithTransport(t transport.Transport, logger *zap.Logger) *StellarClient {
	return &StellarClient{transport: t, logger: logger.Named("stellar_client")}
}

type stellarPagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit"`
}

// GetLatestLedgerNumber returns the latest ledger sequence.
func (c *StellarClient) GetLatestLedgerNumber(ctx context.Context) (uint64, error) {
	raw, err := c.transport.SendRawRequest(ctx, "getLatestLedger", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: getLatestLedger: %v", ErrRequest, err)
	}
	var result struct {
		Sequence uint32 `json:"sequence"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("%w: getLatestLedger result: %v", ErrRequest, err)
	}
	return uint64(result.Sequence), nil
}

// GetLedgers pages through getLedgers starting at start and returns ledgers
// with sequence <= end.
func (c *StellarClient) GetLedgers(ctx context.Context, start, end uint64) ([]models.StellarLedger, error) {
	var out []models.StellarLedger
	params := map[string]any{
		"startLedger": start,
		"pagination":  stellarPagination{Limit: stellarPageLimit},
	}
	for {
		raw, err := c.transport.SendRawRequest(ctx, "getLedgers", params)
		if err != nil {
			return nil, fmt.Errorf("%w: getLedgers: %v", ErrRequest, err)
		}
		var page struct {
			Ledgers []models.StellarLedger `json:"ledgers"`
			Cursor  string                 `json:"cursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("%w: getLedgers result: %v", ErrRequest, err)
		}

		done := len(page.Ledgers) == 0
		for _, l := range page.Ledgers {
			if uint64(l.Sequence) > end {
				done = true
				break
			}
			out = append(out, l)
		}
		if done || page.Cursor == "" {
			return out, nil
		}
		params = map[string]any{
			"pagination": stellarPagination{Cursor: page.Cursor, Limit: stellarPageLimit},
		}
	}
}

// GetTransactions pages through getTransactions for the ledger range.
func (c *StellarClient) GetTransactions(ctx context.Context, start, end uint64) ([]models.StellarTransaction, error) {
	var out []models.StellarTransaction
	params := map[string]any{
		"startLedger": start,
		"pagination":  stellarPagination{Limit: stellarPageLimit},
	}
	for {
		raw, err := c.transport.SendRawRequest(ctx, "getTransactions", params)
		if err != nil {
			return nil, fmt.Errorf("%w: getTransactions: %v", ErrRequest, err)
		}
		var page struct {
			Transactions []models.StellarTransaction `json:"transactions"`
			Cursor       string                      `json:"cursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("%w: getTransactions result: %v", ErrRequest, err)
		}

		done := len(page.Transactions) == 0
		for _, tx := range page.Transactions {
			if uint64(tx.Ledger) > end {
				done = true
				break
			}
			out = append(out, tx)
		}
		if done || page.Cursor == "" {
			return out, nil
		}
		params = map[string]any{
			"pagination": stellarPagination{Cursor: page.Cursor, Limit: stellarPageLimit},
		}
	}
}

// GetEvents pages through getEvents with the contract-type filter for the
// ledger range.
func (c *StellarClient) GetEvents(ctx context.Context, start, end uint64) ([]models.StellarEvent, error) {
	var out []models.StellarEvent
	params := map[string]any{
		"startLedger": start,
		"filters":     []map[string]any{{"type": "contract"}},
		"pagination":  stellarPagination{Limit: stellarPageLimit},
	}
	for {
		raw, err := c.transport.SendRawRequest(ctx, "getEvents", params)
		if err != nil {
			return nil, fmt.Errorf("%w: getEvents: %v", ErrRequest, err)
		}
		var page struct {
			Events []models.StellarEvent `json:"events"`
			Cursor string                `json:"cursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("%w: getEvents result: %v", ErrRequest, err)
		}

		done := len(page.Events) == 0
		for _, ev := range page.Events {
			if uint64(ev.Ledger) > end {
				done = true
				break
			}
			out = append(out, ev)
		}
		if done || page.Cursor == "" {
			return out, nil
		}
		params = map[string]any{
			"pagination": stellarPagination{Cursor: page.Cursor, Limit: stellarPageLimit},
		}
	}
}

// GetBlocks assembles ledgers with their transactions and contract events
// for the inclusive range, ordered ascending by sequence.
func (c *StellarClient) GetBlocks(ctx context.Context, start, end uint64) ([]models.Block, error) {
	if start > end {
		return nil, fmt.Errorf("%w: invalid range %d..%d", ErrInternal, start, end)
	}

	ledgers, err := c.GetLedgers(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(ledgers) == 0 {
		return nil, nil
	}

	txs, err := c.GetTransactions(ctx, start, end)
	if err != nil {
		return nil, err
	}
	events, err := c.GetEvents(ctx, start, end)
	if err != nil {
		return nil, err
	}

	txsBySeq := make(map[uint32][]models.StellarTransaction)
	for _, tx := range txs {
		txsBySeq[tx.Ledger] = append(txsBySeq[tx.Ledger], tx)
	}
	eventsBySeq := make(map[uint32][]models.StellarEvent)
	for _, ev := range events {
		eventsBySeq[ev.Ledger] = append(eventsBySeq[ev.Ledger], ev)
	}

	blocks := make([]models.Block, 0, len(ledgers))
	for _, l := range ledgers {
		blocks = append(blocks, models.Block{Stellar: &models.StellarLedgerData{
			Ledger:       l,
			Transactions: txsBySeq[l.Sequence],
			Events:       eventsBySeq[l.Sequence],
		}})
	}
	return blocks, nil
}
