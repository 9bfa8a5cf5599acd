package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/google/uuid"
)

// RecordLatestMatureDeposits ingests newly-matured counter-chain
// deposits, in strict block-height order. Every deposit in every block
// is processed inside a single KV transaction: if any deposit fails
// (a programming error, not an expected "insufficient funds" outcome),
// the entire batch is rolled back and the mature-deposit cursor is left
// exactly where it was, so the same blocks are retried whole on the
// next call rather than applied partially.
func (s *Store) RecordLatestMatureDeposits(blocks []MaturedBlockDeposits) error {
	opID := uuid.NewString()

	if len(blocks) == 0 {
		return s.advanceNextMatureDepositHeight(opID)
	}

	if err := s.Synchronize(); err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: synchronize: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return err
	}

	txn, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: begin: %w", err)
	}
	tr := newStatusTracker()

	cursor, err := getNextMatureDepositHeight(txn)
	if err != nil {
		txn.Discard()
		return fmt.Errorf("recordLatestMatureDeposits: read cursor: %w", err)
	}

	// rollback drops the KV writes and the tracker, and releases the wallet
	// reservations of every draft built during this batch.
	rollback := func() {
		txn.Discard()
		tr.discard()
		for _, c := range tr.changes {
			if c.transfer.PartialTx != nil {
				_ = s.wallet.RemoveTransaction(c.transfer.PartialTx)
			}
		}
	}

	for _, blk := range blocks {
		if blk.BlockHeight < cursor {
			continue // already ingested, defensive skip on a redelivered block
		}

		for _, d := range blk.Deposits {
			if err := s.ingestDeposit(txn, tr, d); err != nil {
				rollback()
				return fmt.Errorf("recordLatestMatureDeposits: height %d deposit %s: %w", blk.BlockHeight, d.ID, err)
			}
		}

		cursor = blk.BlockHeight + 1
		if err := putNextMatureDepositHeight(txn, cursor); err != nil {
			rollback()
			return fmt.Errorf("recordLatestMatureDeposits: advance cursor: %w", err)
		}
	}

	if err := txn.Commit(); err != nil {
		rollback()
		return fmt.Errorf("recordLatestMatureDeposits: commit: %w", err)
	}
	tr.apply(s.idx)
	log.Ingest.Info().Str("op", opID).Int32("next_mature_deposit_height", cursor).Int("blocks", len(blocks)).Msg("ingested mature deposits")
	return nil
}

// advanceNextMatureDepositHeight handles the degenerate empty-batch call:
// there is nothing to ingest, but the cursor still represents "heights
// scanned so far" to the counter-chain poller, so it advances by one even
// though no deposit was recorded.
func (s *Store) advanceNextMatureDepositHeight(opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return err
	}

	txn, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: begin: %w", err)
	}
	defer txn.Discard()

	cursor, err := getNextMatureDepositHeight(txn)
	if err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: read cursor: %w", err)
	}
	cursor++
	if err := putNextMatureDepositHeight(txn, cursor); err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: advance cursor: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("recordLatestMatureDeposits: commit: %w", err)
	}
	log.Ingest.Info().Str("op", opID).Int32("next_mature_deposit_height", cursor).Msg("advanced mature deposit cursor on empty batch")
	return nil
}

// ingestDeposit records one deposit as a new Suspended transfer and
// attempts to build it immediately. On a redelivery, an existing
// Suspended transfer is built again and any other existing record is
// left untouched. A deposit with a non-positive amount is an error.
func (s *Store) ingestDeposit(txn storage.Txn, tr *statusTracker, d Deposit) error {
	if d.Amount <= 0 {
		return fmt.Errorf("non-positive amount %d", d.Amount)
	}
	existing, err := getTransfer(txn, d.ID)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if existing != nil {
		if existing.Status != StatusSuspended {
			return nil
		}
		return s.tryBuild(txn, tr, existing)
	}

	t := &Transfer{
		DepositID:        d.ID,
		HasDepositHeight: true,
		DepositHeight:    d.BlockHeight,
		TargetScript:     d.TargetScript,
		Amount:           d.Amount,
		Status:           StatusSuspended,
	}
	if err := putTransfer(txn, t); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	tr.created(t)

	return s.tryBuild(txn, tr, t)
}
