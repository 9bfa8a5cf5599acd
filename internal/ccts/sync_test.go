package ccts

import (
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-ccts/config"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

func newMemDB(t *testing.T) storage.TxnDB {
	t.Helper()
	return storage.NewMemory()
}

func testFederationConfig() config.FederationConfig {
	return config.FederationConfig{Threshold: 1, TransactionFee: 100, MinCoinMaturity: 0}
}

func TestSynchronizer_PullsInBatchesFromLastProcessed(t *testing.T) {
	blocks := newFakeBlocks()
	chain := newFakeChain()

	prev := types.Hash{}
	for h := uint64(0); h <= 4; h++ {
		blk := blockWithHeader(h, prev, nil)
		blocks.add(blk)
		hash := blk.Hash()
		chain.set(int32(h), hash)
		prev = hash
	}

	members := [][]byte{{0x02, 0x01}}
	w := newFakeWallet(members, 1, nil)
	w.setTip(prev, 4) // wallet has already chased the chain up to block 4
	fed := testFederationConfig()
	s := New(newMemDB(t), w, fed, blocks, chain, noopDepositExtractor{}, noopWithdrawalExtractor{})
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	sy := NewSynchronizer(s, 2)
	applied, err := sy.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if applied != 5 {
		t.Fatalf("expected all 5 blocks applied, got %d", applied)
	}

	_, height, ok, err := s.RepositoryTip()
	if err != nil {
		t.Fatalf("repository tip: %v", err)
	}
	if !ok || height != 4 {
		t.Fatalf("expected repository tip at height 4, got %d ok=%v", height, ok)
	}

	applied, err = sy.Sync()
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no-op sync once caught up, got %d applied", applied)
	}
}

func TestEventBridge_FlushesBatchAtCursorImmediately(t *testing.T) {
	s, _ := singleMemberSetup(t)
	bridge := NewEventBridge(s, time.Millisecond)

	depositID := crypto.Hash([]byte("eventbridge"))
	target := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0x06}}
	batch := MaturedBlockDeposits{BlockHeight: 0, Deposits: []Deposit{{ID: depositID, TargetScript: target, Amount: 1000, BlockHeight: 0}}}

	if err := bridge.Notify(batch); err != nil {
		t.Fatalf("notify: %v", err)
	}

	tr, err := s.GetTransfer(depositID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr == nil {
		t.Fatalf("expected the batch matching the store's cursor to have been ingested immediately")
	}
}

func TestEventBridge_HoldsOutOfOrderBatchUntilGapFills(t *testing.T) {
	s, _ := singleMemberSetup(t)
	bridge := NewEventBridge(s, time.Hour)

	depositLate := crypto.Hash([]byte("eventbridge-late"))
	target := types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0x07}}

	// Height 1 arrives before height 0; the store's cursor is still 0, so
	// this must be held rather than ingested out of order.
	if err := bridge.Notify(MaturedBlockDeposits{
		BlockHeight: 1,
		Deposits:    []Deposit{{ID: depositLate, TargetScript: target, Amount: 1000, BlockHeight: 1}},
	}); err != nil {
		t.Fatalf("notify height 1: %v", err)
	}
	if tr, _ := s.GetTransfer(depositLate); tr != nil {
		t.Fatalf("expected height 1 batch to be held, not yet ingested")
	}

	// Height 0 arrives: the gap fills and both flush in order.
	if err := bridge.Notify(MaturedBlockDeposits{BlockHeight: 0}); err != nil {
		t.Fatalf("notify height 0: %v", err)
	}

	tr, err := s.GetTransfer(depositLate)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr == nil {
		t.Fatalf("expected the held height-1 batch to be ingested once the gap filled")
	}
}
