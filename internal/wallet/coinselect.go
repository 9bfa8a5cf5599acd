package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no UTXOs available")
)

// UTXO represents a spendable federation output considered by coin selection.
type UTXO struct {
	Outpoint types.Outpoint
	Value    uint64
	Script   types.Script
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []UTXO // Selected UTXOs to spend, in canonical order.
	Total  uint64 // Sum of selected input values.
	Change uint64 // Change = Total - target.
}

// SelectCoins chooses UTXOs to fund a transaction of the given target
// amount (payment + fee).
//
// Determinism is required: independently-run federation members must
// select the identical set of inputs given the same candidate set, so
// this is NOT a waste-minimizing selector. Candidates are sorted into
// the builder's canonical order — (prev_txid_bytes, prev_vout)
// lexicographic — and consumed in that order until the target is met.
// Two members with the same UTXO view always produce the same selection.
func SelectCoins(utxos []UTXO, target uint64) (*CoinSelection, error) {
	if len(utxos) == 0 {
		return nil, ErrNoUTXOs
	}
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Value > 0 {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}

	sort.Slice(candidates, func(i, j int) bool {
		return lessOutpoint(candidates[i].Outpoint, candidates[j].Outpoint)
	})

	var selected []UTXO
	var total uint64
	for _, u := range candidates {
		selected = append(selected, u)
		total += u.Value
		if total >= target {
			return &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total - target,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, totalValue(candidates), target)
}

func lessOutpoint(a, b types.Outpoint) bool {
	if c := bytes.Compare(a.TxID[:], b.TxID[:]); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

func totalValue(utxos []UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
