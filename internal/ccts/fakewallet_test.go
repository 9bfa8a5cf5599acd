package ccts

import (
	"sync"

	"github.com/Klingon-tech/klingnet-ccts/internal/wallet"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// fakeWallet is a minimal in-memory stand-in for wallet.Federation, just
// enough of FederationWallet's contract to exercise the state machine
// without a badger-backed wallet store.
type fakeWallet struct {
	mu sync.Mutex

	coins       []wallet.UTXO
	reservedBy  map[types.Outpoint]types.Hash
	members     [][]byte
	threshold   int
	memberIndex map[string]int
	signer      *crypto.PrivateKey
	tip         types.Hash
	tipHeight   uint64
}

func newFakeWallet(members [][]byte, threshold int, signer *crypto.PrivateKey) *fakeWallet {
	idx := make(map[string]int, len(members))
	for i, m := range members {
		idx[string(m)] = i
	}
	return &fakeWallet{
		reservedBy:  make(map[types.Outpoint]types.Hash),
		members:     members,
		threshold:   threshold,
		memberIndex: idx,
		signer:      signer,
	}
}

func (w *fakeWallet) addCoin(u wallet.UTXO) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.coins = append(w.coins, u)
}

func (w *fakeWallet) TipToChase() (types.Hash, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tip, w.tipHeight
}

// setTip simulates the wallet having already chased the federation
// chain up to (hash, height), the way the real Federation wallet's
// block source calls SetTip as new blocks arrive.
func (w *fakeWallet) setTip(hash types.Hash, height uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tip = hash
	w.tipHeight = height
}

func (w *fakeWallet) SpendableCoins(minConfirmations uint32) ([]wallet.UTXO, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]wallet.UTXO, 0, len(w.coins))
	for _, c := range w.coins {
		if _, reserved := w.reservedBy[c.Outpoint]; reserved {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (w *fakeWallet) ReservationFor(op types.Outpoint) (types.Hash, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.reservedBy[op]
	return h, ok, nil
}

func (w *fakeWallet) ProcessTransaction(t *tx.Transaction) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := t.Hash()
	for _, in := range t.Inputs {
		if existing, ok := w.reservedBy[in.PrevOut]; ok && existing != h {
			return false, nil
		}
	}
	for _, in := range t.Inputs {
		w.reservedBy[in.PrevOut] = h
	}
	return true, nil
}

func (w *fakeWallet) RemoveTransaction(t *tx.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := t.Hash()
	for _, in := range t.Inputs {
		if w.reservedBy[in.PrevOut] == h {
			delete(w.reservedBy, in.PrevOut)
		}
	}
	return nil
}

func (w *fakeWallet) SaveWallet() error { return nil }

func (w *fakeWallet) RemoveBlocks(toHash types.Hash, toHeight uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tip = toHash
	w.tipHeight = toHeight
	return nil
}

func (w *fakeWallet) Signer() (*crypto.PrivateKey, bool) {
	return w.signer, w.signer != nil
}

func (w *fakeWallet) Threshold() int { return w.threshold }

func (w *fakeWallet) MemberIndex(pubKey []byte) (int, bool) {
	i, ok := w.memberIndex[string(pubKey)]
	return i, ok
}

func (w *fakeWallet) Members() [][]byte { return w.members }

// fakeChain is a minimal ChainIndex double over an
// in-memory height->hash map, enough to drive PutBlocks' reorg handling.
type fakeChain struct {
	mu           sync.Mutex
	hashByHeight map[int32]types.Hash
	heightByHash map[types.Hash]int32
	tipHash      types.Hash
	tipHeight    int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		hashByHeight: make(map[int32]types.Hash),
		heightByHash: make(map[types.Hash]int32),
	}
}

func (c *fakeChain) set(height int32, hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashByHeight[height] = hash
	c.heightByHash[hash] = height
	if height > c.tipHeight {
		c.tipHeight = height
		c.tipHash = hash
	}
}

func (c *fakeChain) HashAtHeight(height int32) (types.Hash, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashByHeight[height]
	return h, ok, nil
}

func (c *fakeChain) HeightOf(hash types.Hash) (int32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.heightByHash[hash]
	return h, ok, nil
}

// fakeBlocks is a minimal BlockRepository double over an in-memory map.
type fakeBlocks struct {
	mu        sync.Mutex
	byHash    map[types.Hash]*block.Block
	tipHash   types.Hash
	tipHeight int32
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{byHash: make(map[types.Hash]*block.Block)}
}

func (b *fakeBlocks) add(blk *block.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hash := blk.Hash()
	b.byHash[hash] = blk
	height := int32(blk.Header.Height)
	if height > b.tipHeight || (b.tipHash == types.Hash{}) {
		b.tipHeight = height
		b.tipHash = hash
	}
}

func (b *fakeBlocks) BlockByHash(hash types.Hash) (*block.Block, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blk, ok := b.byHash[hash]
	return blk, ok, nil
}

func (b *fakeBlocks) Tip() (types.Hash, int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tipHash, b.tipHeight, nil
}

type noopDepositExtractor struct{}

func (noopDepositExtractor) ExtractDeposits(blockHeight int32, raw []byte) ([]Deposit, error) {
	return nil, nil
}

type noopWithdrawalExtractor struct{}

func (noopWithdrawalExtractor) ExtractWithdrawals(b *block.Block) ([]Withdrawal, error) {
	return nil, nil
}
