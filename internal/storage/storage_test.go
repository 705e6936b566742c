package storage

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

func testBlocks(numbers ...int64) []models.Block {
	out := make([]models.Block, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, models.Block{EVM: &models.EVMBlock{
			Number: (*hexutil.Big)(big.NewInt(n)),
		}})
	}
	return out
}

// exerciseStorage runs the backend-independent contract checks.
func exerciseStorage(t *testing.T, s BlockStorage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.GetLastProcessedBlock(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveLastProcessedBlock(ctx, "ethereum_mainnet", 21000000))
	n, ok, err := s.GetLastProcessedBlock(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(21000000), n)

	// Overwrite moves the number forward.
	require.NoError(t, s.SaveLastProcessedBlock(ctx, "ethereum_mainnet", 21000001))
	n, _, err = s.GetLastProcessedBlock(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(21000001), n)

	// Networks are independent.
	_, ok, err = s.GetLastProcessedBlock(ctx, "stellar_mainnet")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 20999998))
	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 20999999))

	require.NoError(t, s.SaveBlocks(ctx, "ethereum_mainnet", testBlocks(21000000, 21000001)))
	require.NoError(t, s.DeleteBlocks(ctx, "ethereum_mainnet"))

	// Deleting payloads keeps the last-processed number.
	n, ok, err = s.GetLastProcessedBlock(ctx, "ethereum_mainnet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(21000001), n)
}

func TestFileStorageContract(t *testing.T) {
	s, err := NewFileStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestSQLiteStorageContract(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestFileStorageLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveLastProcessedBlock(ctx, "ethereum_mainnet", 100))
	data, err := os.ReadFile(filepath.Join(dir, "ethereum_mainnet_last_block.txt"))
	require.NoError(t, err)
	assert.Equal(t, "100", string(data))

	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 98))
	require.NoError(t, s.SaveMissedBlock(ctx, "ethereum_mainnet", 99))
	data, err = os.ReadFile(filepath.Join(dir, "ethereum_mainnet_missed_blocks.txt"))
	require.NoError(t, err)
	assert.Equal(t, "98\n99\n", string(data))

	require.NoError(t, s.SaveBlocks(ctx, "ethereum_mainnet", testBlocks(100)))
	paths, err := filepath.Glob(filepath.Join(dir, "ethereum_mainnet_blocks_*.json"))
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	// No temp files linger after the atomic rename.
	tmp, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestFileStorageDeleteBlocksOnlyTouchesOwnSlug(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveBlocks(ctx, "ethereum_mainnet", testBlocks(1)))
	require.NoError(t, s.SaveBlocks(ctx, "base_mainnet", testBlocks(2)))
	require.NoError(t, s.DeleteBlocks(ctx, "ethereum_mainnet"))

	remaining, err := filepath.Glob(filepath.Join(dir, "*_blocks_*.json"))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Contains(t, remaining[0], "base_mainnet")
}

func TestFileStorageCorruptLastBlock(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ethereum_mainnet_last_block.txt"), []byte("bogus"), 0o644))
	_, _, err = s.GetLastProcessedBlock(context.Background(), "ethereum_mainnet")
	assert.ErrorIs(t, err, ErrStorage)
}
