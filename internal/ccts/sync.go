package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
	"github.com/dustin/go-humanize"
)

// defaultSyncBatchSize bounds how many blocks Synchronize pulls per round
// when no caller configures one via NewSynchronizer.
const defaultSyncBatchSize = 100

// Synchronizer drives Store.Synchronize from an external scheduler (a
// ticker, in cmd/ccts/main.go) and reports how many blocks were applied.
// Every read and signature merge on Store also calls Synchronize directly
// per their own contract, so this only matters for keeping the
// repository tip warm between requests.
type Synchronizer struct {
	store *Store
}

// NewSynchronizer configures store to pull at most batchSize blocks per
// round and returns a driver for it.
func NewSynchronizer(store *Store, batchSize int) *Synchronizer {
	if batchSize > 0 {
		store.syncBatchSize = batchSize
	}
	return &Synchronizer{store: store}
}

// Sync brings the store up to the federation wallet's tip-to-chase and
// returns how many blocks were applied.
func (sy *Synchronizer) Sync() (int, error) {
	_, beforeHeight, beforeOK, err := sy.store.RepositoryTip()
	if err != nil {
		return 0, fmt.Errorf("sync: repository tip: %w", err)
	}

	if err := sy.store.Synchronize(); err != nil {
		return 0, err
	}

	_, afterHeight, afterOK, err := sy.store.RepositoryTip()
	if err != nil {
		return 0, fmt.Errorf("sync: repository tip: %w", err)
	}
	switch {
	case !afterOK:
		return 0, nil
	case !beforeOK:
		return int(afterHeight) + 1, nil
	case afterHeight <= beforeHeight:
		return 0, nil
	default:
		return int(afterHeight - beforeHeight), nil
	}
}

// Synchronize brings the repository tip in line with the federation
// wallet's tip-to-chase: reconciling a rewind first if the wallet's view
// of the chain has diverged from ours, then replaying new blocks in
// bounded batches via PutBlocks. Every exposed read and the start of a
// signature merge call this first, so results are never stale relative
// to the wallet's last confirmed view of the chain.
//
// A wallet that hasn't chased any block yet reports a zero tip; there is
// nothing to synchronize against, so this returns immediately.
func (s *Store) Synchronize() error {
	for {
		walletHash, walletHeight := s.wallet.TipToChase()
		if isZeroTip(walletHash, walletHeight) {
			return nil
		}

		rewound, err := s.rewindIfRequired(walletHash, walletHeight)
		if err != nil {
			return fmt.Errorf("synchronize: %w", err)
		}
		if rewound {
			continue
		}

		caughtUp, err := s.synchronizeBatch(walletHeight)
		if err != nil {
			return fmt.Errorf("synchronize: %w", err)
		}
		if caughtUp {
			return nil
		}
	}
}

func isZeroTip(hash types.Hash, height uint64) bool {
	return height == 0 && hash == (types.Hash{})
}

// rewindIfRequired implements rewind_if_required: compare the repository
// tip against the wallet's tip-to-chase and, if they've diverged, either
// ask the wallet to rewind onto a branch we recognize or rewind our own
// tracked SeenInBlock transfers to the highest common ancestor before
// running a sanity revalidation. Returns true if state moved and the
// caller should recheck before batching forward.
func (s *Store) rewindIfRequired(walletHash types.Hash, walletHeight uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return false, err
	}

	rtxn, err := s.db.Begin(false)
	if err != nil {
		return false, fmt.Errorf("rewindIfRequired: begin: %w", err)
	}
	tip, ok, err := getRepositoryTip(rtxn)
	rtxn.Discard()
	if err != nil {
		return false, fmt.Errorf("rewindIfRequired: read tip: %w", err)
	}
	if !ok || tip.Hash == walletHash {
		return false, nil
	}

	if _, found, err := s.chain.HeightOf(walletHash); err != nil {
		return false, fmt.Errorf("rewindIfRequired: chain lookup: %w", err)
	} else if !found {
		log.Sync.Warn().Str("wallet_tip", walletHash.String()).Msg("wallet tip on an unrecognized branch, asking wallet to rewind")
		if err := s.wallet.RemoveBlocks(tip.Hash, tip.Height); err != nil {
			return false, fmt.Errorf("rewindIfRequired: rewind wallet: %w", err)
		}
		return true, nil
	}

	ourHeight, onActiveBranch, err := s.chain.HeightOf(tip.Hash)
	if err != nil {
		return false, fmt.Errorf("rewindIfRequired: chain lookup: %w", err)
	}
	if onActiveBranch && uint64(ourHeight) <= walletHeight {
		return false, nil
	}

	forkHash, forkHeight, found := s.idx.highestBlockAtOrBelow(int32(walletHeight))

	txn, err := s.db.Begin(true)
	if err != nil {
		return false, fmt.Errorf("rewindIfRequired: begin: %w", err)
	}
	tr := newStatusTracker()

	keepBelowOrEqual := int32(-1)
	if found {
		keepBelowOrEqual = forkHeight
	}
	if err := s.rewindSeenAbove(txn, tr, keepBelowOrEqual); err != nil {
		txn.Discard()
		tr.discard()
		return false, fmt.Errorf("rewindIfRequired: %w", err)
	}
	if err := s.validateTransfers(txn, tr); err != nil {
		txn.Discard()
		tr.discard()
		return false, fmt.Errorf("rewindIfRequired: validate: %w", err)
	}

	if found {
		if err := putRepositoryTip(txn, repositoryTip{Hash: forkHash, Height: uint64(forkHeight)}); err != nil {
			txn.Discard()
			tr.discard()
			return false, fmt.Errorf("rewindIfRequired: persist tip: %w", err)
		}
	} else if err := txn.Delete(tableCommon, tipKey); err != nil {
		txn.Discard()
		tr.discard()
		return false, fmt.Errorf("rewindIfRequired: clear tip: %w", err)
	}

	if err := txn.Commit(); err != nil {
		tr.discard()
		return false, fmt.Errorf("rewindIfRequired: commit: %w", err)
	}
	tr.apply(s.idx)
	log.Sync.Warn().Bool("fork_found", found).Int32("fork_height", forkHeight).Msg("rewound to reconcile with wallet tip")
	return true, nil
}

// synchronizeBatch pulls at most syncBatchSize blocks starting just after
// the current repository tip, up to the wallet's chased height, and
// applies them via PutBlocks. Returns true once the repository tip has
// reached the wallet's tip.
func (s *Store) synchronizeBatch(walletHeight uint64) (bool, error) {
	_, repoHeight, ok, err := s.RepositoryTip()
	if err != nil {
		return false, fmt.Errorf("synchronizeBatch: repository tip: %w", err)
	}
	startHeight := int32(0)
	if ok {
		startHeight = int32(repoHeight) + 1
	}
	if uint64(startHeight) > walletHeight {
		return true, nil
	}

	batchSize := s.syncBatchSize
	if batchSize <= 0 {
		batchSize = defaultSyncBatchSize
	}
	end := startHeight + int32(batchSize) - 1
	if uint64(end) > walletHeight {
		end = int32(walletHeight)
	}

	batch := make([]*block.Block, 0, end-startHeight+1)
	for h := startHeight; h <= end; h++ {
		hash, ok, err := s.chain.HashAtHeight(h)
		if err != nil {
			return false, fmt.Errorf("synchronizeBatch: hash at height %d: %w", h, err)
		}
		if !ok {
			return false, fmt.Errorf("synchronizeBatch: no block indexed at height %d", h)
		}
		blk, ok, err := s.blocks.BlockByHash(hash)
		if err != nil {
			return false, fmt.Errorf("synchronizeBatch: fetch block %s: %w", hash, err)
		}
		if !ok {
			return false, fmt.Errorf("synchronizeBatch: block %s not found", hash)
		}
		batch = append(batch, blk)
	}

	if err := s.PutBlocks(batch); err != nil {
		return false, fmt.Errorf("synchronizeBatch: put blocks %d-%d: %w", startHeight, end, err)
	}

	remaining := int64(walletHeight) - int64(end)
	if remaining < 0 {
		remaining = 0
	}
	log.Sync.Info().
		Int32("from", startHeight).
		Int32("to", end).
		Str("applied", humanize.Comma(int64(len(batch)))).
		Str("remaining", humanize.Comma(remaining)).
		Msg("synced batch")

	return uint64(end) == walletHeight, nil
}
