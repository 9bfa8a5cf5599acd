package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// maxReorgDepth bounds how far back PutBlocks will search for a common
// ancestor before giving up with ErrReorgTooDeep, mirroring the chain
// node's own reorg depth cap.
const maxReorgDepth = 1000

// PutBlocks processes newly-connected federation-chain blocks in
// ascending height order: it reconciles any reorg against the currently
// tracked SeenInBlock transfers first, then scans each new block for
// withdrawal bridge outputs and promotes matching FullySigned transfers
// to SeenInBlock.
func (s *Store) PutBlocks(blocks []*block.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return err
	}

	txn, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("putBlocks: begin: %w", err)
	}
	tr := newStatusTracker()

	first := blocks[0]
	if err := s.reconcileReorg(txn, tr, first.Header.PrevHash); err != nil {
		txn.Discard()
		tr.discard()
		return fmt.Errorf("putBlocks: reorg: %w", err)
	}

	var lastHash types.Hash
	var lastHeight uint64
	for _, blk := range blocks {
		hash := blk.Hash()
		if err := s.applyBlock(txn, tr, blk, hash); err != nil {
			txn.Discard()
			tr.discard()
			return fmt.Errorf("putBlocks: apply block %s: %w", hash, err)
		}
		lastHash = hash
		lastHeight = blk.Header.Height
	}

	if err := putRepositoryTip(txn, repositoryTip{Hash: lastHash, Height: lastHeight}); err != nil {
		txn.Discard()
		tr.discard()
		return fmt.Errorf("putBlocks: persist tip: %w", err)
	}

	if err := txn.Commit(); err != nil {
		tr.discard()
		return fmt.Errorf("putBlocks: commit: %w", err)
	}
	tr.apply(s.idx)
	log.Store.Info().Str("tip", lastHash.String()).Uint64("height", lastHeight).Int("blocks", len(blocks)).Msg("put blocks")
	return nil
}

// applyBlock scans one block for withdrawal bridge outputs and marks
// any matching FullySigned transfer SeenInBlock.
func (s *Store) applyBlock(txn storage.Txn, tr *statusTracker, blk *block.Block, hash types.Hash) error {
	withdrawals, err := s.withdrawalX.ExtractWithdrawals(blk)
	if err != nil {
		return fmt.Errorf("extract withdrawals: %w", err)
	}

	for _, w := range withdrawals {
		t, err := getTransfer(txn, w.DepositID)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", w.DepositID, err)
		}
		if t == nil || t.Status != StatusFullySigned || t.PartialTx == nil {
			continue
		}
		if t.PartialTx.Hash() != w.TxHash {
			continue
		}

		old := t.Status
		t.Status = StatusSeenInBlock
		t.HasBlock = true
		t.BlockHash = hash
		t.BlockHeight = int32(blk.Header.Height)
		if err := putTransfer(txn, t); err != nil {
			return fmt.Errorf("persist %s: %w", w.DepositID, err)
		}
		tr.transitioned(t, old)
	}
	return nil
}

// reconcileReorg compares newParent (the incoming block's declared
// parent) against every block hash this store currently has SeenInBlock
// transfers attached to. Any tracked block not equal to, or an ancestor
// of, newParent has been reorged out: every transfer pinned to it is
// demoted back to FullySigned and its reservation is left untouched
// (the withdrawal still spends the same reserved coins; only its
// on-chain confirmation was lost).
//
// If no tracked block can be confirmed still canonical within
// maxReorgDepth, the reorg is too deep to reconcile incrementally: this
// returns ErrReorgTooDeep and leaves every transfer and the repository
// tip untouched, mirroring the chain node's own fatal reorg-depth guard.
// The caller must resync from a trusted checkpoint before retrying.
func (s *Store) reconcileReorg(txn storage.Txn, tr *statusTracker, newParent types.Hash) error {
	tip, ok, err := getRepositoryTip(txn)
	if err != nil {
		return fmt.Errorf("read tip: %w", err)
	}
	if !ok || tip.Hash == newParent {
		return nil // normal extension of the chain we already track
	}

	ancestorHeight, found, err := s.findCommonAncestor(newParent)
	if err != nil {
		return fmt.Errorf("find common ancestor: %w", err)
	}

	if !found {
		log.Store.Error().Msg("reorg exceeds maximum tracked depth")
		return ErrReorgTooDeep
	}
	return s.rewindSeenAbove(txn, tr, ancestorHeight)
}

// findCommonAncestor walks backward from newParent using the external
// chain index, looking for the highest height at which our own tracked
// blocks (depositsByBlock) agree with the canonical chain.
func (s *Store) findCommonAncestor(newParent types.Hash) (int32, bool, error) {
	height, ok, err := s.chain.HeightOf(newParent)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}

	for h := height; h > height-maxReorgDepth && h >= 0; h-- {
		canonicalHash, ok, err := s.chain.HashAtHeight(h)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		if trackedHeight, tracked := s.idx.heightByBlock[canonicalHash]; tracked && trackedHeight == h {
			return h, true, nil
		}
	}
	return 0, false, nil
}

// rewindSeenAbove reverts every SeenInBlock transfer whose block height is
// above keepBelowOrEqual back to FullySigned, so the next resync re-confirms
// it against the reorganized chain. A transfer with no recorded deposit
// height was only ever observed via our own block, with no local record of
// the originating deposit to fall back to; rewinding it leaves nothing
// correct to revert to, so it is deleted outright instead of demoted.
func (s *Store) rewindSeenAbove(txn storage.Txn, tr *statusTracker, keepBelowOrEqual int32) error {
	for _, id := range s.idx.byStatusSnapshot(StatusSeenInBlock) {
		t, err := getTransfer(txn, id)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", id, err)
		}
		if t == nil || !t.HasBlock {
			continue
		}
		if t.BlockHeight <= keepBelowOrEqual {
			continue
		}

		old := t.Status
		if !t.HasDepositHeight {
			if err := deleteTransfer(txn, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			tr.removed(t, old)
			continue
		}

		t.Status = StatusFullySigned
		t.HasBlock = false
		t.BlockHash = types.Hash{}
		t.BlockHeight = 0
		if err := putTransfer(txn, t); err != nil {
			return fmt.Errorf("persist %s: %w", id, err)
		}
		tr.transitioned(t, old)
	}
	return nil
}
