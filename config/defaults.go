package config

import "time"

// DefaultSyncBatchSize bounds a single catch-up pull from the
// synchronizer, mirroring the chain node's own bounded sub-chain sync
// batching.
const DefaultSyncBatchSize = 100

// DefaultEventDebounce is the minimum spacing between repeated
// mature-block requests for the same height.
const DefaultEventDebounce = 30 * time.Second

// DefaultStore returns the default store (node-local) configuration.
func DefaultStore() *StoreConfig {
	return &StoreConfig{
		DataDir:       DefaultDataDir(),
		SyncBatchSize: DefaultSyncBatchSize,
		EventDebounce: DefaultEventDebounce.String(),
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultFederation returns a federation config with conservative
// protocol defaults. MemberPubKeys and Threshold must still be set by
// the operator — there is no sane default for federation membership.
func DefaultFederation() *FederationConfig {
	return &FederationConfig{
		TransactionFee:   1000,
		MinCoinMaturity:  6,
		MinConfirmations: 6,
	}
}
