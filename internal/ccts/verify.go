package ccts

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// VerifyTransfer re-checks a FullySigned transfer's draft against the
// wallet's current reservations and the federation's signature
// threshold before a caller broadcasts it. This is a read-only sanity
// check distinct from validateTransfers: it never mutates state, it
// only answers "is this still safe to broadcast right now".
func (s *Store) VerifyTransfer(id types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.db.Begin(false)
	if err != nil {
		return fmt.Errorf("verifyTransfer: begin: %w", err)
	}
	defer txn.Discard()

	t, err := getTransfer(txn, id)
	if err != nil {
		return fmt.Errorf("verifyTransfer %s: %w", id, err)
	}
	if t == nil {
		return fmt.Errorf("verifyTransfer %s: not found", id)
	}
	if t.Status != StatusFullySigned {
		return fmt.Errorf("verifyTransfer %s: status is %s, not FullySigned", id, t.Status)
	}
	return s.verifyFullySigned(t)
}

func (s *Store) verifyFullySigned(t *Transfer) error {
	if t.PartialTx == nil {
		return fmt.Errorf("verify %s: no draft transaction", t.DepositID)
	}
	h := t.PartialTx.Hash()

	members := s.wallet.Members()
	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[string(m)] = struct{}{}
	}

	for _, in := range t.PartialTx.Inputs {
		reserved, ok, err := s.wallet.ReservationFor(in.PrevOut)
		if err != nil {
			return fmt.Errorf("verify %s: reservation lookup %s: %w", t.DepositID, in.PrevOut, err)
		}
		if !ok || reserved != h {
			return fmt.Errorf("verify %s: input %s not reserved by this draft", t.DepositID, in.PrevOut)
		}

		distinct := make(map[string]struct{})
		for _, sig := range in.Sigs {
			if _, known := memberSet[string(sig.PubKey)]; !known {
				continue
			}
			if !crypto.VerifySignature(h[:], sig.Signature, sig.PubKey) {
				continue
			}
			distinct[sig.PubKeyHex()] = struct{}{}
		}
		if len(distinct) < s.wallet.Threshold() {
			return fmt.Errorf("verify %s: input %s has %d valid signatures, need %d", t.DepositID, in.PrevOut, len(distinct), s.wallet.Threshold())
		}
	}
	return nil
}
