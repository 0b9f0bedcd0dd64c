// Package config loads per-daemon TOML configuration (spec §6), ported from
// the teacher's pkg/config/anchor_config.go YAML-plus-env-substitution
// pattern: the same Duration wrapper, the same ${VAR:-default} regex, and
// the same Load/applyDefaults/Validate three-function shape.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/certen/independant-validator/pkg/address"
)

// Duration wraps time.Duration for TOML unmarshalling from strings like
// "250ms" or "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which BurntSushi/toml
// uses for any TOML string value bound to a non-string Go type.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// AsDuration returns the time.Duration value.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// ChainEndpoint describes one chain (hub or connected) participating in the
// control plane.
type ChainEndpoint struct {
	Name               string `toml:"name"`
	RPCURL             string `toml:"rpc_url"`
	ChainID            string `toml:"chain_id"`
	IntentModuleAddr   string `toml:"intent_module_addr"`
	EscrowModuleAddr   string `toml:"escrow_module_addr"`
	EscrowContractAddr string `toml:"escrow_contract_addr"` // EVM
	EscrowProgramID    string `toml:"escrow_program_id"`    // SVM
}

// APISettings configures the HTTP surface (spec §4.6).
type APISettings struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// AcceptancePair is one (source, target) token pair a solver accepts.
type AcceptancePair struct {
	SourceChainID string `toml:"source_chain_id"`
	SourceToken   string `toml:"source_token"`
	TargetChainID string `toml:"target_chain_id"`
	TargetToken   string `toml:"target_token"`
}

// AcceptanceSettings configures the solver acceptance surface referenced by
// the coordinator when pairing drafts to interested solvers.
type AcceptanceSettings struct {
	SolverURL string           `toml:"solver_url"`
	Pairs     []AcceptancePair `toml:"pairs"`
}

// TrustedRemoteEntry authorises one (source_chain_id, sender_addr) pair to
// message a given destination chain (spec §4.5 stage 2 Classify).
type TrustedRemoteEntry struct {
	DstChainID    string `toml:"dst_chain_id"`
	SourceChainID string `toml:"source_chain_id"`
	SenderAddr    string `toml:"sender_addr"`
}

// DestinationPrograms names the program/contract references a message type
// fans out to on one destination chain (spec §4.5 stage 4 Route).
type DestinationPrograms struct {
	DstChainID       string `toml:"dst_chain_id"`
	OutflowValidator string `toml:"outflow_validator"`
	InflowEscrow     string `toml:"inflow_escrow"`
	Default          string `toml:"default"`
}

// RelaySettings configures the GMP relay daemon: the trust table, the
// per-destination program references, and which destinations still run the
// legacy nonce dedupe scheme (DESIGN.md "Legacy nonce dedupe").
type RelaySettings struct {
	TrustedRemotes          []TrustedRemoteEntry  `toml:"trusted_remotes"`
	Destinations            []DestinationPrograms `toml:"destinations"`
	LegacyNonceDestinations []string              `toml:"legacy_nonce_destinations"`
	MaxAttempts             int                   `toml:"max_attempts"`
	BaseBackoffMs           int64                 `toml:"base_backoff_ms"`
}

// Config is the single TOML file recognised by each daemon (spec §6).
type Config struct {
	HubChain          ChainEndpoint  `toml:"hub_chain"`
	ConnectedChainMVM *ChainEndpoint `toml:"connected_chain_mvm"`
	ConnectedChainEVM *ChainEndpoint `toml:"connected_chain_evm"`
	ConnectedChainSVM *ChainEndpoint `toml:"connected_chain_svm"`

	API APISettings `toml:"api"`

	PollingIntervalMs   int64 `toml:"polling_interval_ms"`
	ValidationTimeoutMs int64 `toml:"validation_timeout_ms"`

	PrivateKey string `toml:"private_key"` // base64 or "ed25519-priv-0x<hex>"
	PublicKey  string `toml:"public_key"`

	Acceptance AcceptanceSettings `toml:"acceptance"`
	Relay      RelaySettings      `toml:"relay"`

	// ExpiryGraceSeconds implements the grace-window Open Question decision
	// (DESIGN.md "Open Question decisions").
	ExpiryGraceSeconds uint64 `toml:"expiry_grace_seconds"`
	// RelayDedupePath, if set, mirrors delivered relay keys to disk so
	// at-most-once survives a restart (DESIGN.md "Relay persistence").
	RelayDedupePath string `toml:"relay_dedupe_path"`
}

// PollingInterval returns the configured polling interval as a Duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// ValidationTimeout returns the configured handler timeout as a Duration.
func (c *Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutMs) * time.Millisecond
}

// RelayBaseBackoff returns the configured relay retry base backoff,
// defaulting to 1s if unset.
func (c *Config) RelayBaseBackoff() time.Duration {
	if c.Relay.BaseBackoffMs == 0 {
		return time.Second
	}
	return time.Duration(c.Relay.BaseBackoffMs) * time.Millisecond
}

// Load reads path, substitutes ${VAR}/${VAR:-default} environment
// references, parses the TOML, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollingIntervalMs == 0 {
		c.PollingIntervalMs = 2000
	}
	if c.ValidationTimeoutMs == 0 {
		c.ValidationTimeoutMs = 5000
	}
	if c.ExpiryGraceSeconds == 0 {
		c.ExpiryGraceSeconds = 30
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate implements spec §6's config validation rules: every chain_id
// referenced by an acceptance pair must be among configured chains, EVM
// addresses must be 20 bytes, and SVM program ids must be valid 32-byte
// base58. Relay chain ids (trusted remotes, destinations) are not checked
// against the configured chains.
func (c *Config) Validate() error {
	if c.HubChain.ChainID == "" {
		return fmt.Errorf("config: hub_chain.chain_id is required")
	}

	known := map[string]bool{c.HubChain.ChainID: true}
	for _, ep := range []*ChainEndpoint{c.ConnectedChainMVM, c.ConnectedChainEVM, c.ConnectedChainSVM} {
		if ep != nil {
			known[ep.ChainID] = true
		}
	}

	for _, pair := range c.Acceptance.Pairs {
		if !known[pair.SourceChainID] {
			return fmt.Errorf("config: acceptance pair references unknown source_chain_id %q", pair.SourceChainID)
		}
		if !known[pair.TargetChainID] {
			return fmt.Errorf("config: acceptance pair references unknown target_chain_id %q", pair.TargetChainID)
		}
	}

	if c.ConnectedChainEVM != nil && c.ConnectedChainEVM.EscrowContractAddr != "" {
		if _, err := address.ParseEVM(c.ConnectedChainEVM.EscrowContractAddr); err != nil {
			return fmt.Errorf("config: connected_chain_evm.escrow_contract_addr: %w", err)
		}
	}

	if c.ConnectedChainSVM != nil && c.ConnectedChainSVM.EscrowProgramID != "" {
		if _, err := address.ParseSVM(c.ConnectedChainSVM.EscrowProgramID); err != nil {
			return fmt.Errorf("config: connected_chain_svm.escrow_program_id: %w", err)
		}
	}

	for _, r := range c.Relay.TrustedRemotes {
		if !anyAddressFamilyParses(r.SenderAddr) {
			return fmt.Errorf("config: relay.trusted_remotes entry for dst_chain_id %q has unparseable sender_addr %q", r.DstChainID, r.SenderAddr)
		}
	}

	return nil
}

// anyAddressFamilyParses reports whether s parses as an address under any
// supported chain family. trusted_remotes entries don't carry an explicit
// family tag, so validation accepts whichever family the string matches.
func anyAddressFamilyParses(s string) bool {
	if _, err := address.ParseMVM(s); err == nil {
		return true
	}
	if _, err := address.ParseEVM(s); err == nil {
		return true
	}
	_, err := address.ParseSVM(s)
	return err == nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}, identical to
// the teacher's anchor_config.go pattern.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
