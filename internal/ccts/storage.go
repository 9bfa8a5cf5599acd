package ccts

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Table prefixes within the store's single badger/memory database.
const (
	tableTransfers byte = 't'
	tableCommon    byte = 'c'
)

// Keys within tableCommon. tipKey is 0x00 deliberately: the repository
// tip is the single most-read value in the store and sorts first in
// any prefix scan over the table.
var (
	tipKey            = []byte{0x00}
	nextMatureHeightKey = []byte{0x01}
)

func getTransfer(txn storage.Txn, id types.Hash) (*Transfer, error) {
	raw, err := txn.Get(tableTransfers, id[:])
	if err != nil {
		return nil, nil
	}
	return DecodeTransfer(raw)
}

func putTransfer(txn storage.Txn, t *Transfer) error {
	raw, err := EncodeTransfer(t)
	if err != nil {
		return fmt.Errorf("encode transfer %s: %w", t.DepositID, err)
	}
	return txn.Put(tableTransfers, t.DepositID[:], raw)
}

func deleteTransfer(txn storage.Txn, id types.Hash) error {
	return txn.Delete(tableTransfers, id[:])
}

func forEachTransfer(txn storage.Txn, fn func(*Transfer) error) error {
	return txn.ForEach(tableTransfers, nil, func(_, value []byte) error {
		t, err := DecodeTransfer(value)
		if err != nil {
			return fmt.Errorf("decode transfer: %w", err)
		}
		return fn(t)
	})
}

// repositoryTip is the last federation-chain block this store has fully
// processed: every transfer transition derived from it is durable.
type repositoryTip struct {
	Hash   types.Hash
	Height uint64
}

func getRepositoryTip(txn storage.Txn) (repositoryTip, bool, error) {
	raw, err := txn.Get(tableCommon, tipKey)
	if err != nil || raw == nil {
		return repositoryTip{}, false, nil
	}
	if len(raw) != 40 {
		return repositoryTip{}, false, fmt.Errorf("%w: corrupt repository tip record: %d bytes", ErrStorageFailure, len(raw))
	}
	var tip repositoryTip
	copy(tip.Hash[:], raw[:32])
	tip.Height = binary.BigEndian.Uint64(raw[32:])
	return tip, true, nil
}

func putRepositoryTip(txn storage.Txn, tip repositoryTip) error {
	buf := make([]byte, 40)
	copy(buf[:32], tip.Hash[:])
	binary.BigEndian.PutUint64(buf[32:], tip.Height)
	return txn.Put(tableCommon, tipKey, buf)
}

// nextMatureDepositHeight is the counter-chain height the ingestion pass
// resumes scanning from. Stored separately from the repository tip
// because it advances on a different, independently-polled chain.
func getNextMatureDepositHeight(txn storage.Txn) (int32, error) {
	raw, err := txn.Get(tableCommon, nextMatureHeightKey)
	if err != nil || raw == nil {
		return 0, nil
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("%w: corrupt next-mature-height record: %d bytes", ErrStorageFailure, len(raw))
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func putNextMatureDepositHeight(txn storage.Txn, height int32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(height))
	return txn.Put(tableCommon, nextMatureHeightKey, buf)
}
