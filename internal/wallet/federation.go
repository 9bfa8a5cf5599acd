package wallet

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/internal/utxo"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Federation is the federation multisig wallet adapter the CCTS core
// depends on: a read-only UTXO view plus reserve/release/rewind
// mutations, all serialized by the store's own lock (the wallet never
// races with store mutations, per the concurrency model).
type Federation struct {
	mu sync.Mutex

	utxos    *utxo.Store
	keystore *Keystore
	name     string

	members   [][]byte // compressed member pubkeys, canonical order
	threshold int

	signer *crypto.PrivateKey

	tipHash   types.Hash
	tipHeight uint64
}

// NewFederation opens the federation wallet adapter over db (the UTXO set
// and reservation index) and ks (the encrypted signing key), with the
// member list and threshold taken from FederationConfig.
func NewFederation(db storage.DB, ks *Keystore, walletName string, members [][]byte, threshold int) *Federation {
	return &Federation{
		utxos:     utxo.NewStore(db),
		keystore:  ks,
		name:      walletName,
		members:   members,
		threshold: threshold,
	}
}

// Threshold returns M, the number of distinct signatures required.
func (f *Federation) Threshold() int {
	return f.threshold
}

// MemberIndex returns the canonical index of a member's compressed pubkey.
func (f *Federation) MemberIndex(pubKey []byte) (int, bool) {
	for i, m := range f.members {
		if string(m) == string(pubKey) {
			return i, true
		}
	}
	return 0, false
}

// Members returns the federation's member public keys in canonical order.
func (f *Federation) Members() [][]byte {
	return f.members
}

// Unlock decrypts this member's signing key from the keystore, so the
// builder can sign at build time (§4.F point 6).
func (f *Federation) Unlock(password []byte) error {
	seed, err := f.keystore.Load(f.name, password)
	if err != nil {
		return fmt.Errorf("unlock federation wallet: %w", err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return fmt.Errorf("derive master key: %w", err)
	}
	signer, err := master.Signer()
	if err != nil {
		return fmt.Errorf("derive signer: %w", err)
	}
	f.mu.Lock()
	f.signer = signer
	f.mu.Unlock()
	return nil
}

// Lock discards the in-memory signing key.
func (f *Federation) Lock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signer != nil {
		f.signer.Zero()
		f.signer = nil
	}
}

// Signer returns the unlocked signing key, if any.
func (f *Federation) Signer() (*crypto.PrivateKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signer, f.signer != nil
}

// TipToChase returns the wallet's last-synced block on this chain. The
// store never advances past this tip.
func (f *Federation) TipToChase() (types.Hash, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tipHash, f.tipHeight
}

// SetTip advances the wallet's tip-to-chase. Called by the block source
// that drives this federation member's local chain node; the store only
// ever reads it via TipToChase.
func (f *Federation) SetTip(hash types.Hash, height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tipHash = hash
	f.tipHeight = height
}

// SpendableCoins returns every federation UTXO with at least
// minConfirmations confirmations at the wallet's current tip height,
// excluding outputs that are already reserved.
func (f *Federation) SpendableCoins(minConfirmations uint32) ([]UTXO, error) {
	f.mu.Lock()
	tip := f.tipHeight
	f.mu.Unlock()

	var coins []UTXO
	err := f.utxos.ForEach(func(u *utxo.UTXO) error {
		if u.Reserved != nil {
			return nil
		}
		if !u.IsSpendable(tip, minConfirmations) {
			return nil
		}
		coins = append(coins, UTXO{Outpoint: u.Outpoint, Value: u.Value, Script: u.Script})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan spendable coins: %w", err)
	}
	return coins, nil
}

// ReservationFor reports the transaction hash currently reserving an
// outpoint, if any.
func (f *Federation) ReservationFor(op types.Outpoint) (types.Hash, bool, error) {
	return f.utxos.ReservationFor(op)
}

// ProcessTransaction atomically reserves every input of tx as spent by
// tx's hash. Fails (false, nil) if any input is unknown to this wallet
// or already reserved by a different transaction.
func (f *Federation) ProcessTransaction(t *tx.Transaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := t.Hash()
	resolved := make([]*utxo.UTXO, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		u, err := f.utxos.Get(in.PrevOut)
		if err != nil {
			log.Wallet.Warn().Str("outpoint", in.PrevOut.String()).Msg("reserve: unknown input")
			return false, nil
		}
		if u.Reserved != nil && *u.Reserved != h {
			log.Wallet.Warn().Str("outpoint", in.PrevOut.String()).Msg("reserve: already reserved by another transaction")
			return false, nil
		}
		resolved = append(resolved, u)
	}

	for _, u := range resolved {
		u.Reserved = &h
		if err := f.utxos.Put(u); err != nil {
			return false, fmt.Errorf("persist reservation: %w", err)
		}
	}
	return true, nil
}

// RemoveTransaction releases tx's input reservations.
func (f *Federation) RemoveTransaction(t *tx.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, in := range t.Inputs {
		u, err := f.utxos.Get(in.PrevOut)
		if err != nil {
			continue
		}
		u.Reserved = nil
		if err := f.utxos.Put(u); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
	}
	return nil
}

// UpdateReservation moves the reservation on a set of outpoints from
// oldHash to newHash, used after signature merge changes a partial
// transaction's hash.
func (f *Federation) UpdateReservation(oldHash, newHash types.Hash, inputs []types.Outpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, op := range inputs {
		u, err := f.utxos.Get(op)
		if err != nil {
			continue
		}
		if u.Reserved == nil || *u.Reserved != oldHash {
			continue
		}
		h := newHash
		u.Reserved = &h
		if err := f.utxos.Put(u); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
	}
	return nil
}

// SaveWallet logs an integrity checkpoint over the current UTXO set. The
// set itself is already durable in badger on every Put/Delete; this
// exists so an operator can compare the commitment across federation
// members out-of-band after a save, the same way the chain node logs a
// state commitment after applying a block.
func (f *Federation) SaveWallet() error {
	root, err := utxo.Commitment(f.utxos)
	if err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}
	log.Wallet.Info().Str("utxo_commitment", root.String()).Str("wallet", f.name).Msg("wallet checkpoint")
	return nil
}

// RemoveBlocks rewinds the wallet's tip to toHeight after a reorg. The
// underlying chain node's own block-locator rewind is an external
// collaborator; this only updates the bookkeeping tip the store reads.
func (f *Federation) RemoveBlocks(toHash types.Hash, toHeight uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tipHash = toHash
	f.tipHeight = toHeight
	return nil
}
