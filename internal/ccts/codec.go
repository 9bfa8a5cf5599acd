package ccts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Klingon-tech/klingnet-ccts/pkg/tx"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Binary self-describing layout, little-endian throughout, varbytes =
// u32 length prefix + raw bytes:
//
//	status:u8
//	deposit_id:32
//	has_deposit_height:u8  [deposit_height:i32]
//	amount:i64
//	target_script:varbytes
//	has_partial_tx:u8      [partial_tx:varbytes]
//	has_block:u8           [block_hash:32, block_height:i32]

// EncodeTransfer serializes a transfer to its on-disk representation.
func EncodeTransfer(t *Transfer) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(byte(t.Status))
	buf.Write(t.DepositID[:])

	writeBool(&buf, t.HasDepositHeight)
	if t.HasDepositHeight {
		writeI32(&buf, t.DepositHeight)
	}

	writeI64(&buf, t.Amount)

	scriptBytes, err := encodeScript(t.TargetScript)
	if err != nil {
		return nil, fmt.Errorf("encode target_script: %w", err)
	}
	writeVarBytes(&buf, scriptBytes)

	writeBool(&buf, t.PartialTx != nil)
	if t.PartialTx != nil {
		txBytes, err := t.PartialTx.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode partial_tx: %w", err)
		}
		writeVarBytes(&buf, txBytes)
	}

	writeBool(&buf, t.HasBlock)
	if t.HasBlock {
		buf.Write(t.BlockHash[:])
		writeI32(&buf, t.BlockHeight)
	}

	return buf.Bytes(), nil
}

// DecodeTransfer parses the on-disk representation produced by EncodeTransfer.
func DecodeTransfer(data []byte) (*Transfer, error) {
	r := bytes.NewReader(data)
	t := &Transfer{}

	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	t.Status = Status(statusByte)

	if _, err := io.ReadFull(r, t.DepositID[:]); err != nil {
		return nil, fmt.Errorf("read deposit_id: %w", err)
	}

	t.HasDepositHeight, err = readBool(r)
	if err != nil {
		return nil, fmt.Errorf("read has_deposit_height: %w", err)
	}
	if t.HasDepositHeight {
		t.DepositHeight, err = readI32(r)
		if err != nil {
			return nil, fmt.Errorf("read deposit_height: %w", err)
		}
	}

	t.Amount, err = readI64(r)
	if err != nil {
		return nil, fmt.Errorf("read amount: %w", err)
	}

	scriptBytes, err := readVarBytes(r)
	if err != nil {
		return nil, fmt.Errorf("read target_script: %w", err)
	}
	t.TargetScript, err = decodeScript(scriptBytes)
	if err != nil {
		return nil, fmt.Errorf("decode target_script: %w", err)
	}

	hasPartialTx, err := readBool(r)
	if err != nil {
		return nil, fmt.Errorf("read has_partial_tx: %w", err)
	}
	if hasPartialTx {
		txBytes, err := readVarBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read partial_tx: %w", err)
		}
		ptx, err := tx.Decode(txBytes)
		if err != nil {
			return nil, fmt.Errorf("decode partial_tx: %w", err)
		}
		t.PartialTx = ptx
	}

	t.HasBlock, err = readBool(r)
	if err != nil {
		return nil, fmt.Errorf("read has_block: %w", err)
	}
	if t.HasBlock {
		if _, err := io.ReadFull(r, t.BlockHash[:]); err != nil {
			return nil, fmt.Errorf("read block_hash: %w", err)
		}
		t.BlockHeight, err = readI32(r)
		if err != nil {
			return nil, fmt.Errorf("read block_height: %w", err)
		}
	}

	return t, nil
}

func encodeScript(s types.Script) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(s.Type))
	writeVarBytes(&buf, s.Data)
	return buf.Bytes(), nil
}

func decodeScript(data []byte) (types.Script, error) {
	r := bytes.NewReader(data)
	typeByte, err := r.ReadByte()
	if err != nil {
		return types.Script{}, err
	}
	scriptData, err := readVarBytes(r)
	if err != nil {
		return types.Script{}, err
	}
	return types.Script{Type: types.ScriptType(typeByte), Data: scriptData}, nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeI32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func readI32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readI64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func writeVarBytes(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

const maxVarBytesLen = 16 * 1024 * 1024

func readVarBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxVarBytesLen {
		return nil, fmt.Errorf("varbytes length %d exceeds maximum %d", n, maxVarBytesLen)
	}
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
