// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc/transaction"
)

var validConfigJSON = `{
    "rpc_list": [
        "https://api.mainnet-beta.solana.com",
        "https://solana-rpc.publicnode.com"
    ],
    "websocket_url": "wss://api.mainnet-beta.solana.com",
    "commitment": "finalized",
    "confirm_timeout_ms": 30000,
    "poll_delay_ms": 2000,
    "rebroadcast_ms": 400,
    "poll_status": false,
    "chunk_size": 4,
    "sequencing": "stop_on_failure",
    "compute_units": 200000,
    "priority_fee_micro_lamports": 5000,
    "debug_logging": true
}`

func setupTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(setupTestConfig(t, validConfigJSON))
	require.NoError(t, err)

	assert.Len(t, cfg.RPCList, 2)
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", cfg.WebSocketURL)
	assert.Equal(t, 4, cfg.ChunkSize)
	assert.Equal(t, transaction.PolicyStopOnFailure, cfg.Policy())
	assert.True(t, cfg.DebugLogging)
	// значения по умолчанию
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
	assert.True(t, cfg.SkipPreflight)

	txCfg := cfg.Transaction()
	assert.Equal(t, rpc.CommitmentFinalized, txCfg.Commitment)
	assert.Equal(t, 30*time.Second, txCfg.ConfirmTimeout)
	assert.Equal(t, 2*time.Second, txCfg.PollDelay)
	assert.Equal(t, 400*time.Millisecond, txCfg.RebroadcastInterval)
	assert.False(t, txCfg.PollStatus)
	assert.Equal(t, uint32(200000), txCfg.ComputeUnits)
	assert.Equal(t, uint64(5000), txCfg.PriorityFee)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(setupTestConfig(t, `{"rpc_list": ["http://127.0.0.1:8899"]}`))
	require.NoError(t, err)

	txCfg := cfg.Transaction()
	assert.Equal(t, rpc.CommitmentConfirmed, txCfg.Commitment)
	assert.Equal(t, time.Minute, txCfg.ConfirmTimeout)
	assert.Equal(t, 5*time.Second, txCfg.PollDelay)
	assert.True(t, txCfg.PollStatus)
	assert.Equal(t, transaction.PolicySequential, cfg.Policy())
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WALLET_ADAPTER_RPC_LIST", "https://a.example.com, https://b.example.com")
	t.Setenv("WALLET_ADAPTER_CHUNK_SIZE", "7")

	cfg, err := LoadConfig(setupTestConfig(t, validConfigJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.RPCList)
	assert.Equal(t, 7, cfg.ChunkSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty rpc list", `{"rpc_list": []}`},
		{"bad rpc scheme", `{"rpc_list": ["ftp://node"]}`},
		{"bad websocket scheme", `{"rpc_list": ["http://node"], "websocket_url": "http://node"}`},
		{"bad commitment", `{"rpc_list": ["http://node"], "commitment": "max"}`},
		{"bad sequencing", `{"rpc_list": ["http://node"], "sequencing": "random"}`},
		{"zero chunk", `{"rpc_list": ["http://node"], "chunk_size": 0}`},
		{"poll longer than timeout", `{"rpc_list": ["http://node"], "confirm_timeout_ms": 100, "poll_delay_ms": 200}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(setupTestConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
