package ccts

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-ccts/config"
	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
	"github.com/google/uuid"
)

// Store is the cross-chain transfer store: the single entry point for
// every CCTS operation. All public methods take the store's lock, so
// the state machine, synchronizer, ingestion pass, and signature merge
// never interleave — the concurrency model is one coarse mutex rather
// than per-transfer locking, matching the badger transaction's own
// single-writer discipline.
type Store struct {
	mu sync.Mutex

	db     storage.TxnDB
	wallet FederationWallet
	idx    *indexes
	fed    config.FederationConfig

	blocks      BlockRepository
	chain       ChainIndex
	depositX    DepositExtractor
	withdrawalX WithdrawalExtractor

	// syncBatchSize bounds how many blocks Synchronize pulls per round
	// before re-checking the wallet's tip. Defaulted here; a caller that
	// wants a different value sets it via NewSynchronizer.
	syncBatchSize int
}

// New constructs a store over db (already opened) without scanning it.
// Call Initialize before any other method.
func New(db storage.TxnDB, w FederationWallet, fed config.FederationConfig, blocks BlockRepository, chain ChainIndex, depositX DepositExtractor, withdrawalX WithdrawalExtractor) *Store {
	return &Store{
		db:            db,
		wallet:        w,
		fed:           fed,
		blocks:        blocks,
		chain:         chain,
		depositX:      depositX,
		withdrawalX:   withdrawalX,
		syncBatchSize: defaultSyncBatchSize,
	}
}

// Initialize performs the full table scan that rebuilds in-memory
// indexes from the durable transfer records. Must be called once before
// any other Store method, and is safe to call again (e.g. in response
// to RebuildIndexes) since it simply discards and repopulates idx.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.db.Begin(false)
	if err != nil {
		return fmt.Errorf("initialize: begin: %w", err)
	}
	defer txn.Discard()

	idx := newIndexes()
	if err := forEachTransfer(txn, func(t *Transfer) error {
		idx.insert(t)
		return nil
	}); err != nil {
		return fmt.Errorf("initialize: scan transfers: %w", err)
	}
	s.idx = idx

	log.Store.Info().
		Int("suspended", len(idx.byStatusSnapshot(StatusSuspended))).
		Int("partial", len(idx.byStatusSnapshot(StatusPartial))).
		Int("fully_signed", len(idx.byStatusSnapshot(StatusFullySigned))).
		Int("seen_in_block", len(idx.byStatusSnapshot(StatusSeenInBlock))).
		Msg("ccts store initialized")
	return nil
}

// GetTransfer returns the current record for a deposit, or nil if none
// exists yet. Synchronizes first, so the read is consistent with the
// wallet's latest tip.
func (s *Store) GetTransfer(id types.Hash) (*Transfer, error) {
	if err := s.Synchronize(); err != nil {
		return nil, fmt.Errorf("getTransfer %s: synchronize: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("getTransfer: begin: %w", err)
	}
	defer txn.Discard()

	t, err := getTransfer(txn, id)
	if err != nil {
		return nil, fmt.Errorf("getTransfer %s: %w", id, err)
	}
	if t == nil {
		return nil, nil
	}
	return t.Clone(), nil
}

// requireInitialized reports ErrNotInitialized for any operation that
// reads or mutates idx before Initialize has run. Callers hold s.mu.
func (s *Store) requireInitialized() error {
	if s.idx == nil {
		return ErrNotInitialized
	}
	return nil
}

// TransferByStatus pairs a deposit id with its transaction record, the
// get_transactions_by_status result shape.
type TransferByStatus struct {
	DepositID types.Hash
	Tx        *tx.Transaction
}

// TransfersByStatus returns every transfer currently in the given status
// together with its draft/final transaction, sorted by the canonical
// ordering of each transaction's first input. A transfer with no built
// transaction yet (Suspended) has no ordering key and sorts after every
// transfer that does, by deposit id.
func (s *Store) TransfersByStatus(status Status) ([]TransferByStatus, error) {
	if err := s.Synchronize(); err != nil {
		return nil, fmt.Errorf("transfersByStatus: synchronize: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}

	ids := s.idx.byStatusSnapshot(status)
	txn, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("transfersByStatus: begin: %w", err)
	}
	defer txn.Discard()

	out := make([]TransferByStatus, 0, len(ids))
	for _, id := range ids {
		t, err := getTransfer(txn, id)
		if err != nil {
			return nil, fmt.Errorf("transfersByStatus %s: %w", id, err)
		}
		if t == nil {
			continue
		}
		out = append(out, TransferByStatus{DepositID: id, Tx: t.PartialTx})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Tx == nil || b.Tx == nil {
			if a.Tx == nil && b.Tx == nil {
				return bytes.Compare(a.DepositID[:], b.DepositID[:]) < 0
			}
			return a.Tx != nil
		}
		if len(a.Tx.Inputs) == 0 || len(b.Tx.Inputs) == 0 {
			return len(a.Tx.Inputs) > len(b.Tx.Inputs)
		}
		return tx.LessOutpoint(a.Tx.Inputs[0].PrevOut, b.Tx.Inputs[0].PrevOut)
	})
	return out, nil
}

// HasSuspended reports whether any transfer currently needs a retry,
// the has_suspended query used to decide whether a validation sweep is
// worth running out of band.
func (s *Store) HasSuspended() (bool, error) {
	if err := s.Synchronize(); err != nil {
		return false, fmt.Errorf("hasSuspended: synchronize: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return false, err
	}
	return len(s.idx.byStatusSnapshot(StatusSuspended)) > 0, nil
}

// NextMatureDepositHeight returns the counter-chain height ingestion will
// resume scanning from.
func (s *Store) NextMatureDepositHeight() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}

	txn, err := s.db.Begin(false)
	if err != nil {
		return 0, fmt.Errorf("nextMatureDepositHeight: begin: %w", err)
	}
	defer txn.Discard()
	return getNextMatureDepositHeight(txn)
}

// SaveCurrentTip reports the durably persisted next-mature-deposit-height
// cursor. The cursor is already committed synchronously by every
// RecordLatestMatureDeposits call; this exists as the save_current_tip
// operation's read-back, giving a caller an explicit checkpoint value
// rather than requiring it to infer one from ingestion side effects.
func (s *Store) SaveCurrentTip() (int32, error) {
	return s.NextMatureDepositHeight()
}

// RepositoryTip returns the last federation-chain block PutBlocks has
// fully processed, used by the synchronizer to resume scanning.
func (s *Store) RepositoryTip() (types.Hash, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.db.Begin(false)
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("repositoryTip: begin: %w", err)
	}
	defer txn.Discard()

	tip, ok, err := getRepositoryTip(txn)
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("repositoryTip: %w", err)
	}
	return tip.Hash, tip.Height, ok, nil
}

// MergeSignatures merges another federation member's partial signatures
// for a transfer into the stored draft, promoting it to FullySigned once
// threshold is met. Returns the transfer's resulting state; a rejected
// or stale merge request is reported by returning the unchanged transfer,
// never as an error.
func (s *Store) MergeSignatures(id types.Hash, incoming *tx.Transaction) (*Transfer, error) {
	opID := uuid.NewString()

	if err := s.Synchronize(); err != nil {
		return nil, fmt.Errorf("mergeSignatures %s: synchronize: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}

	txn, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("mergeSignatures: begin: %w", err)
	}
	tr := newStatusTracker()

	t, err := s.mergeSignatures(txn, tr, id, incoming)
	if err != nil {
		txn.Discard()
		tr.discard()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		tr.discard()
		return nil, fmt.Errorf("mergeSignatures %s: commit: %w", id, err)
	}
	tr.apply(s.idx)
	if t != nil {
		log.Merge.Info().Str("op", opID).Str("deposit_id", id.String()).Str("status", t.Status.String()).Msg("merged signatures")
		return t.Clone(), nil
	}
	return nil, nil
}

// ValidateTransfers revalidates every in-flight transfer's coin
// reservations against the wallet's current truth. Intended to be run
// periodically as a sanity sweep independent of block or deposit
// ingestion.
func (s *Store) ValidateTransfers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInitialized(); err != nil {
		return err
	}

	txn, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("validateTransfers: begin: %w", err)
	}
	tr := newStatusTracker()

	if err := s.validateTransfers(txn, tr); err != nil {
		txn.Discard()
		tr.discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		tr.discard()
		return fmt.Errorf("validateTransfers: commit: %w", err)
	}
	tr.apply(s.idx)
	return nil
}
