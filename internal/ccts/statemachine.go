package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/internal/wallet"
	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// tryBuild attempts to move a Suspended (or brand new) transfer forward
// by selecting coins, building the deterministic draft transaction, and
// reserving its inputs with the wallet. Leaves the transfer Suspended
// (unchanged) if coins are insufficient or the wallet reservation races
// with another draft — neither is treated as fatal, and ingestion builds
// the transfer again when its deposit is delivered again.
func (s *Store) tryBuild(txn storage.Txn, tr *statusTracker, t *Transfer) error {
	coins, err := s.wallet.SpendableCoins(s.fed.MinCoinMaturity)
	if err != nil {
		return fmt.Errorf("tryBuild %s: spendable coins: %w", t.DepositID, err)
	}

	selectable := make([]wallet.UTXO, len(coins))
	copy(selectable, coins)

	selection, err := wallet.SelectCoins(selectable, uint64(t.Amount)+s.fed.TransactionFee)
	if err != nil {
		log.Store.Debug().Str("deposit_id", t.DepositID.String()).Err(err).Msg("insufficient funds, leaving suspended")
		return nil
	}

	signer, _ := s.wallet.Signer()
	draft, err := buildWithdrawal(t.DepositID, t.Amount, t.TargetScript, selection.Inputs, s.wallet.Members(), s.wallet.Threshold(), s.fed.TransactionFee, signer)
	if err != nil {
		return fmt.Errorf("tryBuild %s: %w", t.DepositID, err)
	}

	ok, err := s.wallet.ProcessTransaction(draft)
	if err != nil {
		return fmt.Errorf("tryBuild %s: reserve inputs: %w", t.DepositID, err)
	}
	if !ok {
		log.Store.Debug().Str("deposit_id", t.DepositID.String()).Msg("coin reservation raced, leaving suspended")
		return nil
	}

	old := t.Status
	t.PartialTx = draft
	t.Status = statusFromSignatureCount(draft, s.wallet.Threshold())

	if err := putTransfer(txn, t); err != nil {
		return fmt.Errorf("tryBuild %s: persist: %w", t.DepositID, err)
	}
	if old == StatusSuspended && t.PartialTx == nil {
		tr.created(t)
	} else {
		tr.transitioned(t, old)
	}
	return nil
}

// statusFromSignatureCount returns Partial or FullySigned depending on
// how many distinct member signatures draft already carries relative to
// threshold. A fresh single-input draft signed by the local member in
// buildWithdrawal can already meet threshold when threshold is 1.
func statusFromSignatureCount(draft *tx.Transaction, threshold int) Status {
	if len(draft.Inputs) == 0 {
		return StatusPartial
	}
	if countDistinctSigners(draft) >= threshold {
		return StatusFullySigned
	}
	return StatusPartial
}

func countDistinctSigners(draft *tx.Transaction) int {
	seen := make(map[string]struct{})
	for _, sig := range draft.Inputs[0].Sigs {
		seen[sig.PubKeyHex()] = struct{}{}
	}
	return len(seen)
}

// mergeSignatures merges another federation member's partial signatures
// for transfer id into the stored draft. A no-op, returning the current
// transfer unchanged, if the transfer is unknown, not Partial, or the
// incoming transaction's unsigned hash doesn't match the stored draft's
// (stale or conflicting proposal) — protocol errors here are never
// surfaced as Go errors, only as "nothing changed".
func (s *Store) mergeSignatures(txn storage.Txn, tr *statusTracker, id types.Hash, incoming *tx.Transaction) (*Transfer, error) {
	t, err := getTransfer(txn, id)
	if err != nil {
		return nil, fmt.Errorf("mergeSignatures %s: %w", id, err)
	}
	if t == nil || t.Status != StatusPartial || t.PartialTx == nil {
		return t, nil
	}
	if t.PartialTx.Hash() != incoming.Hash() {
		log.Store.Warn().Str("deposit_id", id.String()).Msg("merge: incoming draft hash mismatch, ignoring")
		return t, nil
	}
	if len(incoming.Inputs) != len(t.PartialTx.Inputs) {
		return t, nil
	}

	incomingHash := incoming.Hash()
	changed := false
	for i := range t.PartialTx.Inputs {
		for _, sig := range incoming.Inputs[i].Sigs {
			if _, has := t.PartialTx.Inputs[i].SigFor(sig.PubKey); has {
				continue
			}
			if !crypto.VerifySignature(incomingHash[:], sig.Signature, sig.PubKey) {
				log.Store.Warn().Str("deposit_id", id.String()).Msg("merge: invalid signature, ignoring")
				continue
			}
			if _, ok := s.wallet.MemberIndex(sig.PubKey); !ok {
				log.Store.Warn().Str("deposit_id", id.String()).Msg("merge: signature from unknown member, ignoring")
				continue
			}
			t.PartialTx.Inputs[i].Sigs = append(t.PartialTx.Inputs[i].Sigs, sig)
			changed = true
		}
	}
	if !changed {
		return t, nil
	}

	old := t.Status
	if countDistinctSigners(t.PartialTx) >= s.wallet.Threshold() {
		t.Status = StatusFullySigned
	}
	if err := putTransfer(txn, t); err != nil {
		return nil, fmt.Errorf("mergeSignatures %s: persist: %w", id, err)
	}
	if old != t.Status {
		tr.transitioned(t, old)
	}
	return t, nil
}

// validateTransfers revalidates every Partial or FullySigned transfer's
// coin reservations against the wallet's current truth, demoting to
// Suspended (and releasing the stale reservation) any transfer whose
// inputs no longer resolve to its own draft. This is the only operation
// allowed to rewind nextMatureDepositHeight: a demoted transfer whose
// originating deposit height is below the current cursor means
// ingestion must replay from that height to rebuild it correctly.
func (s *Store) validateTransfers(txn storage.Txn, tr *statusTracker) error {
	rewindTo := int32(-1)

	for _, status := range []Status{StatusPartial, StatusFullySigned} {
		for _, id := range s.idx.byStatusSnapshot(status) {
			t, err := getTransfer(txn, id)
			if err != nil {
				return fmt.Errorf("validateTransfers: %w", err)
			}
			if t == nil || t.PartialTx == nil {
				continue
			}
			if err := s.verifyReservations(t); err == nil {
				continue
			}

			if err := s.wallet.RemoveTransaction(t.PartialTx); err != nil {
				return fmt.Errorf("validateTransfers %s: release: %w", id, err)
			}
			old := t.Status
			t.Status = StatusSuspended
			t.PartialTx = nil
			if err := putTransfer(txn, t); err != nil {
				return fmt.Errorf("validateTransfers %s: persist: %w", id, err)
			}
			tr.transitioned(t, old)

			if t.HasDepositHeight && (rewindTo < 0 || t.DepositHeight < rewindTo) {
				rewindTo = t.DepositHeight
			}
		}
	}

	if rewindTo >= 0 {
		current, err := getNextMatureDepositHeight(txn)
		if err != nil {
			return fmt.Errorf("validateTransfers: read cursor: %w", err)
		}
		if rewindTo < current {
			if err := putNextMatureDepositHeight(txn, rewindTo); err != nil {
				return fmt.Errorf("validateTransfers: rewind cursor: %w", err)
			}
			log.Store.Warn().Int32("height", rewindTo).Msg("validate_transfers rewound next mature deposit height")
		}
	}
	return nil
}

// verifyReservations checks that every input of t.PartialTx is still
// reserved by t.PartialTx's own hash in the wallet.
func (s *Store) verifyReservations(t *Transfer) error {
	h := t.PartialTx.Hash()
	for _, in := range t.PartialTx.Inputs {
		reserved, ok, err := s.wallet.ReservationFor(in.PrevOut)
		if err != nil {
			return fmt.Errorf("reservation lookup %s: %w", in.PrevOut, err)
		}
		if !ok || reserved != h {
			return fmt.Errorf("input %s not reserved by this draft", in.PrevOut)
		}
	}
	return nil
}
