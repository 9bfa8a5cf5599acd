// Package tx defines the federation withdrawal transaction format: a
// deterministic, multisig-spendable transaction with one payment output,
// one change output, and one deposit-id-carrying bridge output.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-ccts/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Transaction represents a withdrawal transaction spending reserved
// federation UTXOs.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// PartialSig is one federation member's signature over an input's sighash.
type PartialSig struct {
	PubKey    []byte `json:"pubkey"`
	Signature []byte `json:"signature"`
}

// partialSigJSON hex-encodes PartialSig's byte fields.
type partialSigJSON struct {
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature"`
}

// MarshalJSON encodes the partial signature with hex-encoded fields.
func (p PartialSig) MarshalJSON() ([]byte, error) {
	return json.Marshal(partialSigJSON{
		PubKey:    hex.EncodeToString(p.PubKey),
		Signature: hex.EncodeToString(p.Signature),
	})
}

// UnmarshalJSON decodes a partial signature from hex-encoded fields.
func (p *PartialSig) UnmarshalJSON(data []byte) error {
	var j partialSigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	pk, err := hex.DecodeString(j.PubKey)
	if err != nil {
		return fmt.Errorf("partial sig pubkey: %w", err)
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("partial sig signature: %w", err)
	}
	p.PubKey = pk
	p.Signature = sig
	return nil
}

// PubKeyHex returns the hex-encoded public key, used as a merge-time key.
func (p PartialSig) PubKeyHex() string {
	return hex.EncodeToString(p.PubKey)
}

// Input references a reserved federation UTXO being spent, along with
// whatever partial signatures have been collected for it so far.
type Input struct {
	PrevOut types.Outpoint `json:"prevout"`
	Sigs    []PartialSig   `json:"sigs,omitempty"`
}

// SigFor returns the partial signature from pubKey on this input, if any.
func (in Input) SigFor(pubKey []byte) ([]byte, bool) {
	want := hex.EncodeToString(pubKey)
	for _, s := range in.Sigs {
		if s.PubKeyHex() == want {
			return s.Signature, true
		}
	}
	return nil, false
}

// Output defines a new UTXO: a payment, change, or bridge (deposit-id)
// output of the withdrawal transaction.
type Output struct {
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

// Hash computes the transaction id: BLAKE3 of the signing bytes, which
// exclude every collected signature so that merging signatures never
// changes the id federation members sign and compare.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation every federation
// member signs.
//
// Format: version(4) | input_count(4) | [prevout(36)]... |
// output_count(4) | [value(8) + script_type(1) + script_data_len(4) +
// script_data]... | locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, byte(out.Script.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script.Data)))
		buf = append(buf, out.Script.Data...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)

	return buf
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}

// Encode serializes the transaction to JSON. This is the wire format
// stored as a transfer's partial_transaction blob and exchanged between
// federation members while collecting signatures.
func (tx *Transaction) Encode() ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return b, nil
}

// Decode parses a transaction previously produced by Encode.
func Decode(data []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}
