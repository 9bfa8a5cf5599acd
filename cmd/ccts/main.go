// Command ccts runs one federation member's cross-chain transfer store
// instance: it opens the store's durable state, unlocks the member's
// signing key, and drives the synchronizer/event bridge loop against
// whatever the embedding chain integration feeds it.
//
// This binary deliberately does not include a chain node, consensus
// engine, or P2P transport — those are external collaborators per the
// store's own scope (see config.FederationConfig's protocol rules,
// which every member's instance must agree on independently of how
// blocks reach it). A real deployment wires this process to its chain
// node's block feed and counter-chain observer; here that feed is a
// BlockStore the node process writes into out-of-band.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-ccts/config"
	"github.com/Klingon-tech/klingnet-ccts/internal/ccts"
	"github.com/Klingon-tech/klingnet-ccts/internal/chain"
	"github.com/Klingon-tech/klingnet-ccts/internal/extractor"
	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/internal/wallet"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("ccts exited")
		os.Exit(1)
	}
}

func run() error {
	storeCfg, fedCfg, _, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := log.Init(storeCfg.Log.Level, storeCfg.Log.JSON, storeCfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	members := make([][]byte, len(fedCfg.MemberPubKeys))
	for i, hexKey := range fedCfg.MemberPubKeys {
		b, err := hex.DecodeString(hexKey)
		if err != nil {
			return fmt.Errorf("decode member pubkey %d: %w", i, err)
		}
		members[i] = b
	}

	transfersDB, err := storage.NewBadger(storeCfg.TransfersDBDir())
	if err != nil {
		return fmt.Errorf("open transfers db: %w", err)
	}
	defer transfersDB.Close()

	walletDB, err := storage.NewBadger(storeCfg.WalletDBDir())
	if err != nil {
		return fmt.Errorf("open wallet db: %w", err)
	}
	defer walletDB.Close()

	chainDB, err := storage.NewBadger(storeCfg.ChainMirrorDBDir())
	if err != nil {
		return fmt.Errorf("open chain mirror db: %w", err)
	}
	defer chainDB.Close()

	keystore, err := wallet.NewKeystore(storeCfg.KeystoreDir())
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	fedWallet := wallet.NewFederation(walletDB, keystore, storeCfg.MultisigAddress, members, fedCfg.Threshold)

	password, err := promptPassword()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if err := fedWallet.Unlock(password); err != nil {
		return fmt.Errorf("unlock wallet: %w", err)
	}
	defer fedWallet.Lock()

	blockStore := chain.NewBlockStore(chainDB)
	chainView := chain.NewCCTSAdapter(blockStore)

	watchedScript := ccts.FederationScript(members, fedCfg.Threshold)
	depositX := extractor.BlockDepositExtractor{WatchedScript: watchedScript}
	withdrawalX := extractor.BlockWithdrawalExtractor{}

	store := ccts.New(transfersDB, fedWallet, *fedCfg, chainView, chainView, depositX, withdrawalX)
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	resendInterval := 30 * time.Second
	if storeCfg.EventDebounce != "" {
		if d, err := time.ParseDuration(storeCfg.EventDebounce); err == nil {
			resendInterval = d
		}
	}
	bridge := ccts.NewEventBridge(store, resendInterval)
	sync := ccts.NewSynchronizer(store, storeCfg.SyncBatchSize)

	done := make(chan struct{})
	go bridge.RunLoop(done)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	log.Info().Str("multisig_address", storeCfg.MultisigAddress).Msg("ccts store started")
	for {
		select {
		case <-stop:
			close(done)
			return nil
		case <-ticker.C:
			if _, err := sync.Sync(); err != nil {
				log.Warn().Err(err).Msg("sync pass failed, retrying next tick")
			}
		}
	}
}

// promptPassword reads the federation signing key's password from the
// controlling terminal without echoing it.
func promptPassword() ([]byte, error) {
	fmt.Fprint(os.Stderr, "federation wallet password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}
