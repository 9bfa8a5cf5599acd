package ccts

import "github.com/Klingon-tech/klingnet-ccts/pkg/types"

// indexes holds the in-memory reverse lookups rebuilt from a full table
// scan on Initialize, then mutated only through apply of a
// statusTracker after a committed KV transaction; a failed transaction
// drops its tracker and leaves the indexes as they were. Never mutated
// inline from the state machine.
type indexes struct {
	byStatus        map[Status]map[types.Hash]struct{}
	depositsByBlock map[types.Hash]map[types.Hash]struct{}
	heightByBlock   map[types.Hash]int32
}

func newIndexes() *indexes {
	idx := &indexes{
		byStatus:        make(map[Status]map[types.Hash]struct{}),
		depositsByBlock: make(map[types.Hash]map[types.Hash]struct{}),
		heightByBlock:   make(map[types.Hash]int32),
	}
	for s := StatusSuspended; s <= StatusSeenInBlock; s++ {
		idx.byStatus[s] = make(map[types.Hash]struct{})
	}
	return idx
}

// insert records a freshly-scanned transfer during Initialize. Not used
// post-init — mutations after startup go exclusively through apply.
func (idx *indexes) insert(t *Transfer) {
	idx.byStatus[t.Status][t.DepositID] = struct{}{}
	if t.HasBlock {
		idx.addBlockRef(t.BlockHash, t.BlockHeight, t.DepositID)
	}
}

func (idx *indexes) addBlockRef(blockHash types.Hash, blockHeight int32, depositID types.Hash) {
	set, ok := idx.depositsByBlock[blockHash]
	if !ok {
		set = make(map[types.Hash]struct{})
		idx.depositsByBlock[blockHash] = set
	}
	set[depositID] = struct{}{}
	idx.heightByBlock[blockHash] = blockHeight
}

func (idx *indexes) removeBlockRef(blockHash types.Hash, depositID types.Hash) {
	set, ok := idx.depositsByBlock[blockHash]
	if !ok {
		return
	}
	delete(set, depositID)
	if len(set) == 0 {
		delete(idx.depositsByBlock, blockHash)
		delete(idx.heightByBlock, blockHash)
	}
}

// byStatusSnapshot returns a copy of the deposit ids currently in status s.
func (idx *indexes) byStatusSnapshot(s Status) []types.Hash {
	set := idx.byStatus[s]
	out := make([]types.Hash, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// highestBlockAtOrBelow returns the highest block hash recorded in
// depositsByBlock whose height is <= maxHeight, used by
// Synchronizer.rewind_if_required to find the fork point.
func (idx *indexes) highestBlockAtOrBelow(maxHeight int32) (types.Hash, int32, bool) {
	var best types.Hash
	bestHeight := int32(-1)
	found := false
	for hash, height := range idx.heightByBlock {
		if height <= maxHeight && height > bestHeight {
			best = hash
			bestHeight = height
			found = true
		}
	}
	return best, bestHeight, found
}
