package chain

import (
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// CCTSAdapter exposes a BlockStore as ccts.BlockRepository and
// ccts.ChainIndex, the read-only views the transfer store's
// synchronizer depends on. The chain this store observes — its
// consensus, mempool, and P2P propagation — is an external
// collaborator per the store's own scope; this adapter only needs
// durable, already-validated block storage, which BlockStore provides
// without pulling in a validating node.
type CCTSAdapter struct {
	store *BlockStore
}

// NewCCTSAdapter wraps bs for use by ccts.Store/ccts.Synchronizer.
func NewCCTSAdapter(bs *BlockStore) *CCTSAdapter {
	return &CCTSAdapter{store: bs}
}

// BlockByHash implements ccts.BlockRepository.
func (a *CCTSAdapter) BlockByHash(hash types.Hash) (*block.Block, bool, error) {
	blk, err := a.store.GetBlock(hash)
	if err != nil {
		return nil, false, nil
	}
	return blk, true, nil
}

// Tip implements ccts.BlockRepository.
func (a *CCTSAdapter) Tip() (types.Hash, int32, error) {
	hash, height, _, err := a.store.GetTip()
	if err != nil {
		return types.Hash{}, 0, err
	}
	return hash, int32(height), nil
}

// HashAtHeight implements ccts.ChainIndex.
func (a *CCTSAdapter) HashAtHeight(height int32) (types.Hash, bool, error) {
	if height < 0 {
		return types.Hash{}, false, nil
	}
	blk, err := a.store.GetBlockByHeight(uint64(height))
	if err != nil {
		return types.Hash{}, false, nil
	}
	return blk.Hash(), true, nil
}

// HeightOf implements ccts.ChainIndex.
func (a *CCTSAdapter) HeightOf(hash types.Hash) (int32, bool, error) {
	blk, err := a.store.GetBlock(hash)
	if err != nil {
		return 0, false, nil
	}
	return int32(blk.Header.Height), true, nil
}
