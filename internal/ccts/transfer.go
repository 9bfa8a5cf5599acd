// Package ccts implements the cross-chain transfer store: the
// crash-consistent engine that builds, co-signs, tracks, and confirms
// withdrawal transactions for a federated two-way chain peg.
package ccts

import (
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Status is a transfer's position in the withdrawal lifecycle.
type Status uint8

const (
	// StatusSuspended means ingestion or validation could not produce a
	// reserved, buildable transaction (insufficient funds, broken
	// reservation). Built again when ingestion sees its deposit again.
	StatusSuspended Status = iota
	// StatusPartial means a deterministic transaction has been built and
	// its inputs reserved, but fewer than the threshold of signatures
	// have been merged in.
	StatusPartial
	// StatusFullySigned means the threshold of valid signatures has been
	// merged and the transaction is ready for broadcast.
	StatusFullySigned
	// StatusSeenInBlock means the fully-signed transaction has been
	// observed in a block on this chain.
	StatusSeenInBlock
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "Suspended"
	case StatusPartial:
		return "Partial"
	case StatusFullySigned:
		return "FullySigned"
	case StatusSeenInBlock:
		return "SeenInBlock"
	default:
		return "Unknown"
	}
}

// Transfer is the one persisted entity: a single deposit's withdrawal
// record as it moves through the state machine.
type Transfer struct {
	// DepositID is the 32-byte identifier of the source-chain deposit
	// transaction. Primary key, immutable.
	DepositID types.Hash

	// DepositHeight is the counter-chain height at which this deposit
	// matured. Absent (HasDepositHeight=false) when the transfer was
	// first observed via our own block, with no local record of the
	// originating deposit.
	HasDepositHeight bool
	DepositHeight    int32

	TargetScript types.Script
	Amount       int64

	// PartialTx is the current draft withdrawal transaction. Absent in
	// StatusSuspended.
	PartialTx *tx.Transaction

	// BlockHash/BlockHeight locate PartialTx on this chain. Present iff
	// Status == StatusSeenInBlock.
	HasBlock    bool
	BlockHash   types.Hash
	BlockHeight int32

	Status Status
}

// Clone returns a deep-enough copy for safe mutation during a pending
// operation (the transaction builder never aliases a stored record).
func (t *Transfer) Clone() *Transfer {
	c := *t
	if t.PartialTx != nil {
		ptx := *t.PartialTx
		ptx.Inputs = append([]tx.Input(nil), t.PartialTx.Inputs...)
		ptx.Outputs = append([]tx.Output(nil), t.PartialTx.Outputs...)
		c.PartialTx = &ptx
	}
	return &c
}

// ReservedInputs returns the outpoints PartialTx currently spends, or
// nil if there is no partial transaction.
func (t *Transfer) ReservedInputs() []types.Outpoint {
	if t.PartialTx == nil {
		return nil
	}
	ops := make([]types.Outpoint, len(t.PartialTx.Inputs))
	for i, in := range t.PartialTx.Inputs {
		ops[i] = in.PrevOut
	}
	return ops
}
