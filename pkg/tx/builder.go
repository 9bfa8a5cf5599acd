package tx

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Builder constructs withdrawal transactions incrementally, in the
// canonical input order the protocol requires for cross-instance
// determinism.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 1},
	}
}

// AddInput adds an input referencing a reserved coin.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput adds an output with a value and script.
func (b *Builder) AddOutput(value uint64, script types.Script) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Value: value, Script: script})
	return b
}

// SetLockTime sets the transaction lock time.
func (b *Builder) SetLockTime(lockTime uint64) *Builder {
	b.tx.LockTime = lockTime
	return b
}

// SortInputs orders inputs lexicographically by (prev_txid_bytes,
// prev_vout), the canonical order required so that independently-built
// transactions over the same coin set hash identically.
func (b *Builder) SortInputs() *Builder {
	sort.Slice(b.tx.Inputs, func(i, j int) bool {
		return LessOutpoint(b.tx.Inputs[i].PrevOut, b.tx.Inputs[j].PrevOut)
	})
	return b
}

// LessOutpoint is the canonical input ordering: lexicographic by
// prev_txid_bytes, then prev_vout. Exported so callers outside this
// package (the store's query-side ordering, for one) can sort by the same
// rule without re-deriving it.
func LessOutpoint(a, b types.Outpoint) bool {
	for i := range a.TxID {
		if a.TxID[i] != b.TxID[i] {
			return a.TxID[i] < b.TxID[i]
		}
	}
	return a.Index < b.Index
}

// SignWithKey adds this federation member's partial signature to every
// input. The signed hash is the transaction id (SigningBytes already
// excludes signatures, so signing never changes it).
func (b *Builder) SignWithKey(key *crypto.PrivateKey) error {
	hash := b.tx.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		if _, has := b.tx.Inputs[i].SigFor(pubKey); has {
			continue
		}
		b.tx.Inputs[i].Sigs = append(b.tx.Inputs[i].Sigs, PartialSig{
			PubKey:    pubKey,
			Signature: sig,
		})
	}
	return nil
}

// Build returns the constructed transaction. Does NOT validate — call
// Validate separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
