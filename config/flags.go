package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	DataDir         string
	Config          string
	MultisigAddress string

	WalletKeystore string

	FederationThreshold int
	FederationMembers   string
	FederationFee       uint64
	MinMaturity         uint
	MinConfirmations    uint

	SyncBatchSize  int
	EventDebounce  string
	RebuildIndexes bool

	LogLevel string
	LogFile  string
	LogJSON  bool

	Args []string

	SetLogJSON       bool
	SetRebuildIndexes bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("ccts", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.StringVar(&f.DataDir, "datadir", "", "Data directory root")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.MultisigAddress, "multisig-address", "", "Federation multisig address")

	fs.StringVar(&f.WalletKeystore, "wallet-keystore", "", "Path to this member's encrypted signing key")

	fs.IntVar(&f.FederationThreshold, "federation-threshold", 0, "M in the M-of-N signing threshold")
	fs.StringVar(&f.FederationMembers, "federation-members", "", "Comma-separated federation member pubkeys (hex)")
	fs.Uint64Var(&f.FederationFee, "federation-fee", 0, "Flat withdrawal transaction fee, in base units")
	fs.UintVar(&f.MinMaturity, "min-maturity", 0, "Confirmations required before a federation coin is spendable")
	fs.UintVar(&f.MinConfirmations, "min-confirmations", 0, "Confirmations required before a deposit is ingested")

	fs.IntVar(&f.SyncBatchSize, "sync-batch-size", 0, "Max blocks pulled per synchronizer catch-up batch")
	fs.StringVar(&f.EventDebounce, "event-debounce", "", "Minimum spacing between repeated mature-block requests")
	fs.BoolVar(&f.RebuildIndexes, "rebuild-indexes", false, "Force a full in-memory index rebuild on startup")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.SetRebuildIndexes = isFlagSet(fs, "rebuild-indexes")

	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to the store and federation configs.
// Flags take precedence over file and default values.
func ApplyFlags(store *StoreConfig, fed *FederationConfig, f *Flags) {
	if f.DataDir != "" {
		store.DataDir = f.DataDir
	}
	if f.MultisigAddress != "" {
		store.MultisigAddress = f.MultisigAddress
	}
	if f.WalletKeystore != "" {
		store.Wallet.KeystoreFile = f.WalletKeystore
	}
	if f.SyncBatchSize != 0 {
		store.SyncBatchSize = f.SyncBatchSize
	}
	if f.EventDebounce != "" {
		store.EventDebounce = f.EventDebounce
	}
	if f.SetRebuildIndexes {
		store.RebuildIndexes = f.RebuildIndexes
	}

	if f.LogLevel != "" {
		store.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		store.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		store.Log.JSON = f.LogJSON
	}

	if f.FederationThreshold != 0 {
		fed.Threshold = f.FederationThreshold
	}
	if f.FederationMembers != "" {
		fed.MemberPubKeys = parseStringList(f.FederationMembers)
	}
	if f.FederationFee != 0 {
		fed.TransactionFee = f.FederationFee
	}
	if f.MinMaturity != 0 {
		fed.MinCoinMaturity = uint32(f.MinMaturity)
	}
	if f.MinConfirmations != 0 {
		fed.MinConfirmations = uint32(f.MinConfirmations)
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `ccts - crash-consistent federation transfer store

Usage:
  ccts [options]
  ccts --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir              Data directory root (default: ~/.klingnet-ccts)
  --config, -c           Config file path (default: <datadir>/federatedTransfers<addr>/ccts.conf)
  --multisig-address     Federation multisig address

Wallet Options:
  --wallet-keystore      Path to this member's encrypted signing key

Federation Options (protocol rules, must match across all members):
  --federation-threshold   M in the M-of-N signing threshold
  --federation-members     Comma-separated member pubkeys (hex)
  --federation-fee         Flat withdrawal transaction fee, in base units
  --min-maturity           Confirmations before a federation coin is spendable
  --min-confirmations      Confirmations before a deposit is ingested

Sync Options:
  --sync-batch-size      Max blocks pulled per catch-up batch
  --event-debounce       Minimum spacing between repeated mature-block requests
  --rebuild-indexes      Force a full in-memory index rebuild on startup

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Note:
  Federation rules must be identical, byte-for-byte, across every member's
  instance, or transfers will never reach quorum. Data directories are
  created automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*StoreConfig, *FederationConfig, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("ccts version 0.1.0")
		os.Exit(0)
	}

	store := DefaultStore()
	fed := DefaultFederation()

	if flags.DataDir != "" {
		store.DataDir = flags.DataDir
	}
	if flags.MultisigAddress != "" {
		store.MultisigAddress = flags.MultisigAddress
	}

	configPath := flags.Config
	if configPath == "" {
		if store.MultisigAddress == "" {
			return nil, nil, nil, fmt.Errorf("multisig-address is required on first start (or pass --config explicitly)")
		}
		if err := EnsureDataDirs(store); err != nil {
			return nil, nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
		}
		configPath = store.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(store, fed, fileValues); err != nil {
		return nil, nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(store, fed, flags)

	if err := Validate(store, fed); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return store, fed, flags, nil
}
