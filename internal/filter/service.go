package filter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// ChainClients carries the chain-specific clients filtering needs. Stellar
// ledger data arrives pre-assembled, so only the EVM side requires a client.
type ChainClients struct {
	EVM EVMReceiptFetcher
}

// Service dispatches blocks to the chain-specialized filter by union arm.
type Service struct {
	evm     *EVMFilter
	stellar *StellarFilter
	logger  *zap.Logger
}

// NewService creates the filter service with both chain filters.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		evm:     NewEVMFilter(logger),
		stellar: NewStellarFilter(logger),
		logger:  logger.Named("filter"),
	}
}

// FilterBlock routes the block to its chain filter. The block arm must agree
// with the network's chain type. Midnight and Solana networks are accepted
// in configuration but have no filter yet; their blocks produce no matches.
func (s *Service) FilterBlock(ctx context.Context, clients ChainClients, network *models.Network, block models.Block, monitors []models.Monitor) ([]models.MonitorMatch, error) {
	switch {
	case block.EVM != nil:
		if network.Type != models.NetworkEVM {
			return nil, fmt.Errorf("%w: EVM block on %s network %q", ErrBlockTypeMismatch, network.Type, network.Slug)
		}
		return s.evm.FilterBlock(ctx, clients.EVM, network, block.EVM, monitors)
	case block.Stellar != nil:
		if network.Type != models.NetworkStellar {
			return nil, fmt.Errorf("%w: Stellar ledger on %s network %q", ErrBlockTypeMismatch, network.Type, network.Slug)
		}
		return s.stellar.FilterBlock(network, block.Stellar, monitors)
	case block.Midnight != nil, block.Solana != nil:
		s.logger.Debug("no filter implemented for chain type, skipping block",
			zap.String("network", network.Slug),
			zap.String("chain_type", string(network.Type)))
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: empty block union for network %q", ErrInternal, network.Slug)
	}
}
