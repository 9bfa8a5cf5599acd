package ccts

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

func sampleTransfer() *Transfer {
	return &Transfer{
		DepositID:        crypto.Hash([]byte("deposit-1")),
		HasDepositHeight: true,
		DepositHeight:    42,
		TargetScript:     types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0xaa, 0xbb}},
		Amount:           12345,
		Status:           StatusSuspended,
	}
}

func TestCodec_RoundTrip_Suspended(t *testing.T) {
	orig := sampleTransfer()

	data, err := EncodeTransfer(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTransfer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.DepositID != orig.DepositID || got.Amount != orig.Amount || got.Status != orig.Status {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, orig)
	}
	if got.HasDepositHeight != orig.HasDepositHeight || got.DepositHeight != orig.DepositHeight {
		t.Fatalf("deposit height mismatch: got %+v", got)
	}
	if got.TargetScript.Type != orig.TargetScript.Type || !bytes.Equal(got.TargetScript.Data, orig.TargetScript.Data) {
		t.Fatalf("target script mismatch: got %+v", got.TargetScript)
	}
	if got.PartialTx != nil {
		t.Fatalf("expected no partial tx, got %+v", got.PartialTx)
	}
	if got.HasBlock {
		t.Fatalf("expected no block reference")
	}
}

func TestCodec_RoundTrip_WithPartialTxAndBlock(t *testing.T) {
	orig := sampleTransfer()
	orig.Status = StatusSeenInBlock
	orig.PartialTx = &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{
			{PrevOut: types.Outpoint{TxID: crypto.Hash([]byte("prev")), Index: 1}},
		},
		Outputs: []tx.Output{
			{Value: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0x01}}},
		},
	}
	orig.HasBlock = true
	orig.BlockHash = crypto.Hash([]byte("block-1"))
	orig.BlockHeight = 7

	data, err := EncodeTransfer(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTransfer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.PartialTx == nil {
		t.Fatalf("expected partial tx to survive roundtrip")
	}
	if got.PartialTx.Hash() != orig.PartialTx.Hash() {
		t.Fatalf("partial tx hash mismatch")
	}
	if !got.HasBlock || got.BlockHash != orig.BlockHash || got.BlockHeight != orig.BlockHeight {
		t.Fatalf("block reference mismatch: got %+v", got)
	}
}

func TestCodec_DecodeTruncated(t *testing.T) {
	orig := sampleTransfer()
	data, err := EncodeTransfer(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeTransfer(data[:len(data)-5]); err == nil {
		t.Fatalf("expected error decoding truncated data")
	}
}

func TestTransfer_Clone_Independent(t *testing.T) {
	orig := sampleTransfer()
	orig.PartialTx = &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{Index: 1}}},
		Outputs: []tx.Output{{Value: 10}},
	}

	clone := orig.Clone()
	clone.PartialTx.Inputs[0].PrevOut.Index = 99
	clone.Amount = 999

	if orig.PartialTx.Inputs[0].PrevOut.Index == 99 {
		t.Fatalf("clone mutation leaked into original inputs")
	}
	if orig.Amount == 999 {
		t.Fatalf("clone mutation leaked into original amount")
	}
}

func TestTransfer_ReservedInputs(t *testing.T) {
	tr := &Transfer{}
	if tr.ReservedInputs() != nil {
		t.Fatalf("expected nil reserved inputs with no partial tx")
	}

	op := types.Outpoint{TxID: crypto.Hash([]byte("x")), Index: 2}
	tr.PartialTx = &tx.Transaction{Inputs: []tx.Input{{PrevOut: op}}}
	got := tr.ReservedInputs()
	if len(got) != 1 || got[0] != op {
		t.Fatalf("unexpected reserved inputs: %+v", got)
	}
}
