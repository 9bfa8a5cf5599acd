package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Validate checks the store and federation configs for obvious operator
// mistakes before the store opens its databases.
func Validate(store *StoreConfig, fed *FederationConfig) error {
	if store == nil {
		return fmt.Errorf("store config is nil")
	}
	if fed == nil {
		return fmt.Errorf("federation config is nil")
	}

	if store.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	if store.MultisigAddress == "" {
		return fmt.Errorf("multisig_address must not be empty")
	}
	if store.SyncBatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", store.SyncBatchSize)
	}
	if store.EventDebounce != "" {
		if _, err := time.ParseDuration(store.EventDebounce); err != nil {
			return fmt.Errorf("sync.event_debounce %q is not a valid duration: %w", store.EventDebounce, err)
		}
	}

	switch strings.ToLower(store.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", store.Log.Level)
	}

	if err := validateFederation(fed); err != nil {
		return err
	}

	return nil
}

func validateFederation(fed *FederationConfig) error {
	n := len(fed.MemberPubKeys)
	if n == 0 {
		return fmt.Errorf("federation.members must list at least one member")
	}
	if fed.Threshold <= 0 {
		return fmt.Errorf("federation.threshold must be positive, got %d", fed.Threshold)
	}
	if fed.Threshold > n {
		return fmt.Errorf("federation.threshold (%d) exceeds member count (%d)", fed.Threshold, n)
	}

	seen := make(map[string]struct{}, n)
	for i, key := range fed.MemberPubKeys {
		k := strings.ToLower(strings.TrimSpace(key))
		if k == "" {
			return fmt.Errorf("federation.members[%d] is empty", i)
		}
		b, err := hex.DecodeString(k)
		if err != nil || (len(b) != 33 && len(b) != 32) {
			return fmt.Errorf("federation.members[%d] must be a 32 or 33-byte hex pubkey", i)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("federation.members has duplicate pubkey %q", k)
		}
		seen[k] = struct{}{}
		fed.MemberPubKeys[i] = k
	}

	if fed.MinConfirmations == 0 {
		return fmt.Errorf("federation.min_confirmations must be positive")
	}
	if fed.MinCoinMaturity == 0 {
		return fmt.Errorf("federation.min_maturity must be positive")
	}

	return nil
}
