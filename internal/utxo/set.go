// Package utxo manages the federation wallet's unspent output set.
package utxo

import "github.com/Klingon-tech/klingnet-ccts/pkg/types"

// UTXO represents an unspent output locked to the federation multisig
// script, together with its current reservation state.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Value    uint64         `json:"value"`
	Script   types.Script   `json:"script"`
	Height   uint64         `json:"height"`

	// Reserved is non-nil when a transfer's partial_transaction currently
	// claims this output as an input. Cleared by Release.
	Reserved *types.Hash `json:"reserved,omitempty"`
}

// IsSpendable reports whether u has reached height + minCoinMaturity
// confirmations, given the current wallet tip height.
func (u *UTXO) IsSpendable(tipHeight uint64, minCoinMaturity uint32) bool {
	if tipHeight < u.Height {
		return false
	}
	return tipHeight-u.Height+1 >= uint64(minCoinMaturity)
}

// Set is the interface for federation UTXO storage.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
	ForEach(fn func(*UTXO) error) error
}
