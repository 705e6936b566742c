package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

func TestServiceRejectsMismatchedBlockArm(t *testing.T) {
	s := NewService(zap.NewNop())
	network := &models.Network{Slug: "stellar_mainnet", Type: models.NetworkStellar}
	block := models.Block{EVM: &models.EVMBlock{}}

	_, err := s.FilterBlock(context.Background(), ChainClients{}, network, block, nil)
	assert.ErrorIs(t, err, ErrBlockTypeMismatch)
}

func TestServiceSkipsUnsupportedChains(t *testing.T) {
	s := NewService(zap.NewNop())
	network := &models.Network{Slug: "midnight_mainnet", Type: models.NetworkMidnight}
	block := models.Block{Midnight: &models.MidnightBlock{}}

	matches, err := s.FilterBlock(context.Background(), ChainClients{}, network, block, []models.Monitor{{Name: "m"}})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestServiceRejectsEmptyUnion(t *testing.T) {
	s := NewService(zap.NewNop())
	network := &models.Network{Slug: "ethereum_mainnet", Type: models.NetworkEVM}

	_, err := s.FilterBlock(context.Background(), ChainClients{}, network, models.Block{}, nil)
	assert.ErrorIs(t, err, ErrInternal)
}
