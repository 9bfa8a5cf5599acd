package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/wallet"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

func federationScript(members [][]byte, threshold int) types.Script {
	return FederationScript(members, threshold)
}

// FederationScript builds the M-of-N multisig locking script for a
// federation: type ScriptTypeFederationMultisig, data = threshold(1) |
// count(1) | count compressed pubkeys(33 each), in the members'
// canonical order. Exported so an embedding application can derive the
// same watched script a DepositExtractor needs to recognize deposits,
// without re-deriving the encoding independently.
func FederationScript(members [][]byte, threshold int) types.Script {
	data := make([]byte, 0, 2+len(members)*33)
	data = append(data, byte(threshold), byte(len(members)))
	for _, m := range members {
		data = append(data, m...)
	}
	return types.Script{Type: types.ScriptTypeFederationMultisig, Data: data}
}

// bridgeScript returns the unspendable marker output carrying a
// deposit's id, so a federation-chain block scan can recover which
// deposit a withdrawal transaction settles.
func bridgeScript(depositID types.Hash) types.Script {
	return types.Script{Type: types.ScriptTypeBridge, Data: depositID[:]}
}

// buildWithdrawal constructs the deterministic draft transaction for a
// deposit: one payment output to the deposit's target script, one
// change output back to the federation multisig, and one bridge output
// carrying the deposit id. Inputs are wallet coins selected in
// canonical order and are reserved by the caller before this is called.
//
// If the federation signer is unlocked, the member's own partial
// signature is attached before returning; otherwise the transaction is
// returned unsigned and must wait for a merge to attach this member's
// signature later.
func buildWithdrawal(
	depositID types.Hash,
	amount int64,
	targetScript types.Script,
	coins []wallet.UTXO,
	members [][]byte,
	threshold int,
	fee uint64,
	signer *crypto.PrivateKey,
) (*tx.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("build withdrawal %s: non-positive amount %d", depositID, amount)
	}

	target := uint64(amount) + fee
	var total uint64
	for _, c := range coins {
		total += c.Value
	}
	if total < target {
		return nil, fmt.Errorf("%w: have %d need %d", wallet.ErrInsufficientFunds, total, target)
	}
	change := total - target

	b := tx.NewBuilder()
	for _, c := range coins {
		b.AddInput(c.Outpoint)
	}
	b.SortInputs()

	b.AddOutput(uint64(amount), targetScript)
	if change > 0 {
		b.AddOutput(change, federationScript(members, threshold))
	}
	b.AddOutput(0, bridgeScript(depositID))

	if signer != nil {
		if err := b.SignWithKey(signer); err != nil {
			return nil, fmt.Errorf("sign withdrawal %s: %w", depositID, err)
		}
	}

	return b.Build(), nil
}
