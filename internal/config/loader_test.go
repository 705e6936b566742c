package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

const networkJSON = `{
	"slug": "ethereum_mainnet",
	"name": "Ethereum Mainnet",
	"network_type": "EVM",
	"rpc_urls": [
		{"url": "https://eth.example.com", "type": "rpc", "weight": 100},
		{"url": "https://eth-fallback.example.com", "type": "rpc", "weight": 50}
	],
	"chain_id": 1,
	"block_time_ms": 12000,
	"confirmation_blocks": 12,
	"cron_schedule": "0 */1 * * * *",
	"store_blocks": true
}`

const monitorJSON = `{
	"name": "usdc-transfers",
	"networks": ["ethereum_mainnet"],
	"addresses": [{"address": "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"}],
	"match_conditions": {
		"transactions": [],
		"functions": [],
		"events": [
			{"signature": "Transfer(address,address,uint256)", "expression": "value > 1000000"}
		]
	},
	"triggers": ["notify-slack"]
}`

const triggersJSON = `{
	"notify-slack": {
		"name": "notify-slack",
		"trigger_type": "slack",
		"config": {
			"slack_url": "https://hooks.slack.com/services/T00/B00/XXX",
			"message": {"title": "Match on ${monitor_name}", "body": "tx ${transaction_hash}"}
		}
	}
}`

func writeConfigRoot(t *testing.T, network, monitor, triggers string) string {
	t.Helper()
	root := t.TempDir()
	for sub, content := range map[string]string{
		"networks/ethereum_mainnet.json": network,
		"monitors/usdc_transfers.json":   monitor,
		"triggers/notifications.json":    triggers,
	} {
		path := filepath.Join(root, sub)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestLoadAssemblesSnapshot(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	snap, err := Load(root)
	require.NoError(t, err)

	require.Contains(t, snap.Networks, "ethereum_mainnet")
	n := snap.Networks["ethereum_mainnet"]
	assert.Equal(t, models.NetworkEVM, n.Type)
	assert.True(t, n.ShouldStoreBlocks())
	assert.Len(t, n.URLsByType(models.URLTypeRPC), 2)

	require.Contains(t, snap.Monitors, "usdc-transfers")
	require.Contains(t, snap.Triggers, "notify-slack")
	trig := snap.Triggers["notify-slack"]
	require.NotNil(t, trig.Slack)
	assert.Equal(t, "Match on ${monitor_name}", trig.Slack.Message.Title)
}

func TestMonitorRoundTrip(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	snap, err := Load(root)
	require.NoError(t, err)

	original := snap.Monitors["usdc-transfers"]
	data, err := json.Marshal(original)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "monitors", "usdc_transfers.json"), data, 0o644))
	reloaded, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, original, reloaded.Monitors["usdc-transfers"])
}

func TestLoadRejectsUnknownNetworkReference(t *testing.T) {
	monitor := `{
		"name": "bad", "networks": ["base_mainnet"],
		"match_conditions": {"transactions": [], "functions": [], "events": []},
		"triggers": []
	}`
	root := writeConfigRoot(t, networkJSON, monitor, triggersJSON)
	_, err := Load(root)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "base_mainnet")
}

func TestLoadRejectsUnknownTriggerReference(t *testing.T) {
	monitor := `{
		"name": "bad", "networks": ["ethereum_mainnet"],
		"match_conditions": {"transactions": [], "functions": [], "events": []},
		"triggers": ["ghost"]
	}`
	root := writeConfigRoot(t, networkJSON, monitor, triggersJSON)
	_, err := Load(root)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "ghost")
}

func TestLoadRejectsBadCron(t *testing.T) {
	bad := `{
		"slug": "ethereum_mainnet", "network_type": "EVM",
		"rpc_urls": [{"url": "https://eth.example.com", "type": "rpc", "weight": 100}],
		"block_time_ms": 12000, "confirmation_blocks": 12,
		"cron_schedule": "not a schedule"
	}`
	root := writeConfigRoot(t, bad, monitorJSON, triggersJSON)
	_, err := Load(root)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "cron_schedule")
}

func TestLoadRejectsBadExpression(t *testing.T) {
	monitor := `{
		"name": "bad", "networks": ["ethereum_mainnet"],
		"match_conditions": {
			"transactions": [], "functions": [],
			"events": [{"signature": "Transfer(address,address,uint256)", "expression": "value banana"}]
		},
		"triggers": []
	}`
	root := writeConfigRoot(t, networkJSON, monitor, triggersJSON)
	_, err := Load(root)
	require.ErrorIs(t, err, ErrValidation)
}

func TestLoadRejectsMalformedEVMAddress(t *testing.T) {
	monitor := `{
		"name": "bad", "networks": ["ethereum_mainnet"],
		"addresses": [{"address": "not-an-address"}],
		"match_conditions": {"transactions": [], "functions": [], "events": []},
		"triggers": []
	}`
	root := writeConfigRoot(t, networkJSON, monitor, triggersJSON)
	_, err := Load(root)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestValidateAddressPerChainFamily(t *testing.T) {
	assert.NoError(t, validateAddress(models.NetworkEVM, "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"))
	assert.Error(t, validateAddress(models.NetworkEVM, "0xA0B8"))
	assert.Error(t, validateAddress(models.NetworkEVM, "CC7YMFMYZM2HE6O3JT5CNTFBHVXCZTV7CEYT56IGBHR4XFNTGTN62CPT"))

	assert.NoError(t, validateAddress(models.NetworkStellar, "CC7YMFMYZM2HE6O3JT5CNTFBHVXCZTV7CEYT56IGBHR4XFNTGTN62CPT"))
	assert.NoError(t, validateAddress(models.NetworkStellar, "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"))
	assert.Error(t, validateAddress(models.NetworkStellar, "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"))
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("*/10 * * * * *"))
	assert.NoError(t, ValidateCron("0 */5 * * * *"))
	assert.Error(t, ValidateCron("* * * * *"))
	assert.Error(t, ValidateCron("bogus"))
}

func TestSnapshotMonitorsForNetwork(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	snap, err := Load(root)
	require.NoError(t, err)

	assert.Len(t, snap.MonitorsForNetwork("ethereum_mainnet"), 1)
	assert.Empty(t, snap.MonitorsForNetwork("base_mainnet"))
	assert.Len(t, snap.ActiveNetworks(), 1)

	// Paused monitors drop out.
	m := snap.Monitors["usdc-transfers"]
	m.Paused = true
	snap.Monitors["usdc-transfers"] = m
	assert.Empty(t, snap.MonitorsForNetwork("ethereum_mainnet"))
	assert.Empty(t, snap.ActiveNetworks())
}

func TestServiceReloadSwapsSnapshot(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	s, err := NewService(root, zap.NewNop())
	require.NoError(t, err)

	var reloaded *Snapshot
	s.OnReload(func(snap *Snapshot) { reloaded = snap })

	second := `{
		"name": "dai-transfers", "networks": ["ethereum_mainnet"],
		"match_conditions": {"transactions": [], "functions": [], "events": []},
		"triggers": []
	}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "monitors", "dai_transfers.json"), []byte(second), 0o644))

	s.reload()
	require.NotNil(t, reloaded)
	assert.Len(t, s.Snapshot().Monitors, 2)
}

func TestServiceReloadKeepsSnapshotOnError(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	s, err := NewService(root, zap.NewNop())
	require.NoError(t, err)
	before := s.Snapshot()

	require.NoError(t, os.WriteFile(filepath.Join(root, "monitors", "usdc_transfers.json"), []byte("{broken"), 0o644))
	s.reload()

	assert.Same(t, before, s.Snapshot())
}

func TestServiceWatchStopsOnContextCancel(t *testing.T) {
	root := writeConfigRoot(t, networkJSON, monitorJSON, triggersJSON)
	s, err := NewService(root, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
