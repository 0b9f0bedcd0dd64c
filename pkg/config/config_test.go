package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleConfig = `
[hub_chain]
name = "hub"
rpc_url = "http://localhost:8090"
chain_id = "hub-1"

[connected_chain_evm]
name = "evm"
rpc_url = "http://localhost:8545"
chain_id = "evm-1"
escrow_contract_addr = "0x0000000000000000000000000000000000001234"

[api]
host = "0.0.0.0"
port = 9000
cors_origins = ["https://example.com"]

polling_interval_ms = 1500
validation_timeout_ms = 4000

[acceptance]
solver_url = "http://localhost:7000"

[[acceptance.pairs]]
source_chain_id = "hub-1"
source_token = "USDC"
target_chain_id = "evm-1"
target_token = "USDC"
`

func TestLoadAppliesValuesAndDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "hub-1", cfg.HubChain.ChainID)
	require.Equal(t, 9000, cfg.API.Port)
	require.Equal(t, uint64(30), cfg.ExpiryGraceSeconds) // default
	require.Equal(t, []string{"https://example.com"}, cfg.API.CORSOrigins)
}

func TestLoadRejectsUnknownAcceptanceChain(t *testing.T) {
	path := writeTempConfig(t, `
[hub_chain]
chain_id = "hub-1"

[[acceptance.pairs]]
source_chain_id = "hub-1"
target_chain_id = "unknown-chain"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadEVMAddress(t *testing.T) {
	path := writeTempConfig(t, `
[hub_chain]
chain_id = "hub-1"

[connected_chain_evm]
chain_id = "evm-1"
escrow_contract_addr = "not-an-address"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadParsesRelaySettings(t *testing.T) {
	path := writeTempConfig(t, `
[hub_chain]
chain_id = "hub-1"

[relay]
max_attempts = 5
base_backoff_ms = 250
legacy_nonce_destinations = ["evm-1"]

[[relay.trusted_remotes]]
dst_chain_id = "evm-1"
source_chain_id = "hub-1"
sender_addr = "0x0000000000000000000000000000000000000000000000000000000000001234"

[[relay.destinations]]
dst_chain_id = "evm-1"
outflow_validator = "0x0000000000000000000000000000000000001111"
inflow_escrow = "0x0000000000000000000000000000000000002222"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Relay.MaxAttempts)
	require.Equal(t, []string{"evm-1"}, cfg.Relay.LegacyNonceDestinations)
	require.Len(t, cfg.Relay.TrustedRemotes, 1)
	require.Equal(t, "evm-1", cfg.Relay.TrustedRemotes[0].DstChainID)
	require.Len(t, cfg.Relay.Destinations, 1)
	require.Equal(t, "0x0000000000000000000000000000000000001111", cfg.Relay.Destinations[0].OutflowValidator)
}

func TestLoadRejectsUnparseableTrustedRemoteSender(t *testing.T) {
	path := writeTempConfig(t, `
[hub_chain]
chain_id = "hub-1"

[[relay.trusted_remotes]]
dst_chain_id = "evm-1"
source_chain_id = "hub-1"
sender_addr = "not-an-address"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvVarSubstitution(t *testing.T) {
	require.NoError(t, os.Setenv("CERTEN_TEST_RPC", "http://from-env:1234"))
	defer os.Unsetenv("CERTEN_TEST_RPC")

	path := writeTempConfig(t, `
[hub_chain]
chain_id = "hub-1"
rpc_url = "${CERTEN_TEST_RPC}"

[connected_chain_mvm]
chain_id = "${CERTEN_UNSET_VAR:-mvm-default}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://from-env:1234", cfg.HubChain.RPCURL)
	require.Equal(t, "mvm-default", cfg.ConnectedChainMVM.ChainID)
}

// TestConfigRoundTrip covers spec §8's TOML law test: deserialize(serialize(c)) = c.
func TestConfigRoundTrip(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, toml.NewEncoder(&buf).Encode(cfg))

	var roundTripped Config
	_, err = toml.Decode(buf.String(), &roundTripped)
	require.NoError(t, err)
	roundTripped.applyDefaults()

	require.Equal(t, cfg, &roundTripped)
}
