// Package extractor implements the pluggable chain-scanning
// collaborators ccts.Store depends on: turning raw blocks from either
// side of the peg into the deposit and withdrawal records the transfer
// store understands.
package extractor

import (
	"github.com/Klingon-tech/klingnet-ccts/internal/ccts"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// BlockWithdrawalExtractor recovers withdrawal bridge outputs from
// federation-chain blocks. A withdrawal transaction carries exactly one
// zero-value ScriptTypeBridge output whose Data is the settled
// deposit's 32-byte id.
type BlockWithdrawalExtractor struct{}

// ExtractWithdrawals implements ccts.WithdrawalExtractor.
func (BlockWithdrawalExtractor) ExtractWithdrawals(b *block.Block) ([]ccts.Withdrawal, error) {
	var out []ccts.Withdrawal
	for _, t := range b.Transactions {
		for _, o := range t.Outputs {
			if o.Script.Type != types.ScriptTypeBridge || len(o.Script.Data) != types.HashSize {
				continue
			}
			var depositID types.Hash
			copy(depositID[:], o.Script.Data)
			out = append(out, ccts.Withdrawal{
				DepositID: depositID,
				TxHash:    t.Hash(),
			})
		}
	}
	return out, nil
}
