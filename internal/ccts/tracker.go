package ccts

import "github.com/Klingon-tech/klingnet-ccts/pkg/types"

// statusChange is one tracked mutation: a transfer moving from oldStatus
// (nil meaning "did not previously exist") to its current status.
type statusChange struct {
	transfer  *Transfer
	oldStatus *Status
	// deleted marks a transfer removed entirely (seen-only transfer
	// erased on reorg), rather than moved between statuses.
	deleted bool
}

// statusTracker is a per-operation scratch structure collecting
// (transfer, old_status) pairs plus the block hashes touched during the
// operation. It exists so the in-memory indexes are never mutated
// inside the KV commit's critical section: apply() folds the tracker in
// only after a successful commit, and a failed commit simply drops it,
// leaving memory untouched.
type statusTracker struct {
	changes        []statusChange
	touchedBlocks  map[types.Hash]struct{}
	newBlockHeight map[types.Hash]int32
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		touchedBlocks:  make(map[types.Hash]struct{}),
		newBlockHeight: make(map[types.Hash]int32),
	}
}

// created records a transfer that did not exist before this operation.
func (tr *statusTracker) created(t *Transfer) {
	tr.changes = append(tr.changes, statusChange{transfer: t, oldStatus: nil})
	tr.touch(t)
}

// transitioned records a status change on an existing transfer.
func (tr *statusTracker) transitioned(t *Transfer, old Status) {
	o := old
	tr.changes = append(tr.changes, statusChange{transfer: t, oldStatus: &o})
	tr.touch(t)
}

// removed records a transfer deleted outright (reorg deletion of a
// seen-only record).
func (tr *statusTracker) removed(t *Transfer, old Status) {
	o := old
	tr.changes = append(tr.changes, statusChange{transfer: t, oldStatus: &o, deleted: true})
}

func (tr *statusTracker) touch(t *Transfer) {
	if t.HasBlock {
		tr.touchedBlocks[t.BlockHash] = struct{}{}
		tr.newBlockHeight[t.BlockHash] = t.BlockHeight
	}
}

// apply folds the tracked changes into idx. Called exactly once, after
// the KV transaction that produced these changes has committed
// successfully.
func (tr *statusTracker) apply(idx *indexes) {
	for _, c := range tr.changes {
		t := c.transfer

		if c.oldStatus != nil {
			delete(idx.byStatus[*c.oldStatus], t.DepositID)
		}

		if c.deleted {
			if t.HasBlock {
				idx.removeBlockRef(t.BlockHash, t.DepositID)
			}
			continue
		}

		idx.byStatus[t.Status][t.DepositID] = struct{}{}

		if t.HasBlock {
			idx.addBlockRef(t.BlockHash, t.BlockHeight, t.DepositID)
		} else if c.oldStatus != nil {
			// Transitioned away from having a block reference (e.g. reorg
			// downgrading SeenInBlock -> FullySigned).
			for blockHash, set := range idx.depositsByBlock {
				if _, ok := set[t.DepositID]; ok {
					idx.removeBlockRef(blockHash, t.DepositID)
				}
			}
		}
	}
}

// discard is a no-op named for symmetry with apply: a failed KV commit
// simply drops the tracker without calling apply, leaving idx untouched.
func (tr *statusTracker) discard() {}
