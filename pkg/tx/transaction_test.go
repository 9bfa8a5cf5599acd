package tx

import (
	"testing"

	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

func sampleTx() *Transaction {
	return &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, Script: types.Script{Type: types.ScriptTypeFederationMultisig}}},
	}
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := sampleTx()
	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithContent(t *testing.T) {
	tx1 := sampleTx()
	tx2 := sampleTx()
	tx2.Outputs[0].Value = 2000

	if tx1.Hash() == tx2.Hash() {
		t.Error("different transactions should have different hashes")
	}
}

func TestTransaction_Hash_IgnoresSignatures(t *testing.T) {
	tx := sampleTx()
	h1 := tx.Hash()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	b := &Builder{tx: tx}
	if err := b.SignWithKey(key); err != nil {
		t.Fatalf("SignWithKey() error: %v", err)
	}

	if h1 != tx.Hash() {
		t.Error("Hash() should not change when signatures are added")
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	tx := &Transaction{
		Outputs: []Output{{Value: 1000}, {Value: 2000}},
	}
	total, err := tx.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if total != 3000 {
		t.Errorf("TotalOutputValue() = %d, want 3000", total)
	}
}

func TestTransaction_EncodeDecode_RoundTrip(t *testing.T) {
	tx := sampleTx()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	b := &Builder{tx: tx}
	if err := b.SignWithKey(key); err != nil {
		t.Fatalf("SignWithKey() error: %v", err)
	}

	data, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if decoded.Hash() != tx.Hash() {
		t.Error("decoded transaction hash mismatch")
	}
	if len(decoded.Inputs[0].Sigs) != 1 {
		t.Fatalf("decoded input sigs = %d, want 1", len(decoded.Inputs[0].Sigs))
	}
	if decoded.Inputs[0].Sigs[0].PubKeyHex() != tx.Inputs[0].Sigs[0].PubKeyHex() {
		t.Error("decoded signature pubkey mismatch")
	}
}

func TestPartialSig_SigFor(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()

	in := Input{Sigs: []PartialSig{{PubKey: key.PublicKey(), Signature: []byte{0x01}}}}

	if _, ok := in.SigFor(key.PublicKey()); !ok {
		t.Error("SigFor() should find the matching signature")
	}
	if _, ok := in.SigFor(other.PublicKey()); ok {
		t.Error("SigFor() should not find a signature from a different key")
	}
}
