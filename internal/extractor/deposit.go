package extractor

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/ccts"
	"github.com/Klingon-tech/klingnet-ccts/pkg/block"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// BlockDepositExtractor recovers deposits from counter-chain blocks
// encoded in the same JSON block format this chain uses. A deposit
// transaction pays the federation's watched multisig script and carries
// a companion ScriptTypeBridge output whose data is the target script
// to receive the corresponding withdrawal on this chain.
type BlockDepositExtractor struct {
	// WatchedScript is the federation multisig script deposits must pay
	// on the counter chain for this extractor to recognize them.
	WatchedScript types.Script
}

// ExtractDeposits implements ccts.DepositExtractor.
func (e BlockDepositExtractor) ExtractDeposits(blockHeight int32, raw []byte) ([]ccts.Deposit, error) {
	var b block.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("extract deposits: decode block: %w", err)
	}

	var out []ccts.Deposit
	for _, t := range b.Transactions {
		var depositValue uint64
		var hasDeposit bool
		var targetScript types.Script
		var hasTarget bool

		for _, o := range t.Outputs {
			switch {
			case o.Script.Type == e.WatchedScript.Type && string(o.Script.Data) == string(e.WatchedScript.Data):
				depositValue += o.Value
				hasDeposit = true
			case o.Script.Type == types.ScriptTypeBridge && len(o.Script.Data) > 1:
				targetScript = types.Script{Type: types.ScriptType(o.Script.Data[0]), Data: o.Script.Data[1:]}
				hasTarget = true
			}
		}

		if hasDeposit && hasTarget && depositValue > 0 {
			out = append(out, ccts.Deposit{
				ID:           t.Hash(),
				TargetScript: targetScript,
				Amount:       int64(depositValue),
				BlockHeight:  blockHeight,
			})
		}
	}
	return out, nil
}
