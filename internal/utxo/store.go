package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-ccts/internal/storage"
	"github.com/Klingon-tech/klingnet-ccts/pkg/types"
)

// Key prefixes for the federation UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixRes  = []byte("r/") // r/<txid><index> -> reserving transaction hash
)

// Store implements Set backed by a storage.DB, plus a reservation index
// recording which draft withdrawal transaction currently claims each
// output as an input.
type Store struct {
	db storage.DB
}

// NewStore creates a new federation UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+4)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

// reservationKey builds a reservation index key: "r/" + txid(32) + index(4).
func reservationKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixRes)+types.HashSize+4)
	copy(key, prefixRes)
	copy(key[len(prefixRes):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixRes)+types.HashSize:], op.Index)
	return key
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Put stores a UTXO and syncs its reservation index entry.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}

	rk := reservationKey(u.Outpoint)
	if u.Reserved != nil {
		if err := s.db.Put(rk, u.Reserved[:]); err != nil {
			return fmt.Errorf("reservation index put: %w", err)
		}
	} else {
		if err := s.db.Delete(rk); err != nil {
			return fmt.Errorf("reservation index delete: %w", err)
		}
	}

	return nil
}

// Delete removes a UTXO and its reservation index entry.
func (s *Store) Delete(outpoint types.Outpoint) error {
	if err := s.db.Delete(reservationKey(outpoint)); err != nil {
		return fmt.Errorf("reservation index delete: %w", err)
	}
	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in the store.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// ReservationFor returns the transaction hash currently reserving the
// given outpoint, or false if it is unreserved.
func (s *Store) ReservationFor(outpoint types.Outpoint) (types.Hash, bool, error) {
	data, err := s.db.Get(reservationKey(outpoint))
	if err != nil {
		return types.Hash{}, false, nil
	}
	var h types.Hash
	if len(data) != types.HashSize {
		return types.Hash{}, false, fmt.Errorf("malformed reservation entry for %s", outpoint)
	}
	copy(h[:], data)
	return h, true, nil
}

// ClearAll removes all UTXOs and reservation entries.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixRes} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}
