// Package config handles CCTS configuration.
//
// Configuration is split into two categories, the same way the chain
// node splits genesis rules from node settings:
//   - Federation rules: the M-of-N threshold, member keys, flat fee, and
//     maturity policy. These must match byte-for-byte across every
//     federation member's instance — they are the peg's genesis.
//   - Store settings: per-instance runtime configuration (data directory,
//     sync batch size, logging) that can vary between members.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FederationConfig holds the federation-wide protocol parameters every
// member's CCTS instance must agree on.
type FederationConfig struct {
	// Threshold is M in the M-of-N multisig scheme.
	Threshold int `conf:"federation.threshold"`
	// MemberPubKeys are the N members' compressed secp256k1 public keys,
	// hex-encoded, in a fixed canonical order.
	MemberPubKeys []string `conf:"federation.members"`
	// TransactionFee is the flat fee, in base units, charged on every
	// withdrawal transaction the store builds.
	TransactionFee uint64 `conf:"federation.fee"`
	// MinCoinMaturity is the number of confirmations a federation-held
	// coin must have before the builder will spend it.
	MinCoinMaturity uint32 `conf:"federation.min_maturity"`
	// MinConfirmations is the number of confirmations a deposit must
	// reach before it is considered mature and eligible for ingestion.
	MinConfirmations uint32 `conf:"federation.min_confirmations"`
}

// Size returns N, the number of federation members.
func (f FederationConfig) Size() int {
	return len(f.MemberPubKeys)
}

// StoreConfig holds node-local runtime configuration for one federation
// member's CCTS instance.
type StoreConfig struct {
	// DataDir is the root directory under which this instance's
	// federatedTransfers<multisig_address> directory lives.
	DataDir string `conf:"datadir"`
	// MultisigAddress is this federation's multisig address, used both to
	// derive the data directory name and to validate output scripts.
	MultisigAddress string `conf:"multisig_address"`
	// SyncBatchSize bounds how many blocks the synchronizer pulls in a
	// single catch-up batch.
	SyncBatchSize int `conf:"sync.batch_size"`
	// EventDebounce is the minimum interval between repeated
	// mature-block requests for the same height from the event bridge.
	EventDebounce string `conf:"sync.event_debounce"`

	Wallet WalletConfig
	Log    LogConfig

	// RebuildIndexes is the operator's rebuild-indexes flag. No index
	// state is persisted and Initialize rebuilds the in-memory indexes on
	// every startup, so nothing reads this field. Not persisted in the
	// config file — an operator maintenance flag only.
	RebuildIndexes bool
}

// WalletConfig holds the federation wallet adapter's settings.
type WalletConfig struct {
	// KeystoreFile is the path to this member's encrypted signing key.
	KeystoreFile string `conf:"wallet.keystore"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-ccts
//	macOS:   ~/Library/Application Support/KlingnetCCTS
//	Windows: %APPDATA%\KlingnetCCTS
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-ccts"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetCCTS")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetCCTS")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetCCTS")
	default:
		return filepath.Join(home, ".klingnet-ccts")
	}
}

// FederationDataDir returns this instance's data directory:
// <DataDir>/federatedTransfers<multisig_address>.
func (c *StoreConfig) FederationDataDir() string {
	return filepath.Join(c.DataDir, "federatedTransfers"+c.MultisigAddress)
}

// TransfersDBDir returns the badger directory for the transfers/common tables.
func (c *StoreConfig) TransfersDBDir() string {
	return filepath.Join(c.FederationDataDir(), "store")
}

// WalletDBDir returns the badger directory for the federation wallet's
// UTXO set and reservation index.
func (c *StoreConfig) WalletDBDir() string {
	return filepath.Join(c.FederationDataDir(), "wallet")
}

// ChainMirrorDBDir returns the badger directory for the local mirror of
// federation-chain blocks the synchronizer replays from. Populated by
// this instance's chain integration, external to the store itself.
func (c *StoreConfig) ChainMirrorDBDir() string {
	return filepath.Join(c.FederationDataDir(), "chain")
}

// KeystoreDir returns the directory holding this member's encrypted
// signing key.
func (c *StoreConfig) KeystoreDir() string {
	return filepath.Join(c.FederationDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *StoreConfig) LogsDir() string {
	return filepath.Join(c.FederationDataDir(), "logs")
}

// ConfigFile returns the config file path.
func (c *StoreConfig) ConfigFile() string {
	return filepath.Join(c.FederationDataDir(), "ccts.conf")
}

// EnsureDataDirs creates the instance's directory structure and a
// default config file if they don't already exist. Idempotent — safe to
// call on every startup.
func EnsureDataDirs(cfg *StoreConfig) error {
	dirs := []string{
		cfg.FederationDataDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
