package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MemoryDB implements DB and TxnDB using an in-memory map. Used as the
// fast in-process substitute for BadgerDB in tests.
type MemoryDB struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.Lock()
	type kv struct {
		k string
		v []byte
	}
	p := string(prefix)
	var snapshot []kv
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			snapshot = append(snapshot, kv{k, v})
		}
	}
	m.mu.Unlock()

	for _, e := range snapshot {
		if err := fn([]byte(e.k), e.v); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// Begin starts a transaction. Writes are buffered in an overlay and
// applied to the underlying map atomically on Commit.
func (m *MemoryDB) Begin(writable bool) (Txn, error) {
	m.mu.Lock()
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.Unlock()

	return &memoryTxn{
		db:       m,
		writable: writable,
		snapshot: snapshot,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]bool),
	}, nil
}

type memoryTxn struct {
	db       *MemoryDB
	writable bool
	snapshot map[string][]byte
	writes   map[string][]byte
	deletes  map[string]bool
}

func (t *memoryTxn) Get(table byte, key []byte) ([]byte, error) {
	k := string(tableKey(table, key))
	if t.deletes[k] {
		return nil, fmt.Errorf("key not found")
	}
	if v, ok := t.writes[k]; ok {
		return v, nil
	}
	v, ok := t.snapshot[k]
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return v, nil
}

func (t *memoryTxn) Put(table byte, key, value []byte) error {
	if !t.writable {
		return fmt.Errorf("memory txn: read-only")
	}
	k := string(tableKey(table, key))
	delete(t.deletes, k)
	t.writes[k] = value
	return nil
}

func (t *memoryTxn) Delete(table byte, key []byte) error {
	if !t.writable {
		return fmt.Errorf("memory txn: read-only")
	}
	k := string(tableKey(table, key))
	delete(t.writes, k)
	t.deletes[k] = true
	return nil
}

func (t *memoryTxn) Has(table byte, key []byte) (bool, error) {
	k := string(tableKey(table, key))
	if t.deletes[k] {
		return false, nil
	}
	if _, ok := t.writes[k]; ok {
		return true, nil
	}
	_, ok := t.snapshot[k]
	return ok, nil
}

func (t *memoryTxn) ForEach(table byte, prefix []byte, fn func(key, value []byte) error) error {
	full := string(tableKey(table, prefix))
	seen := make(map[string]bool)

	for k, v := range t.writes {
		if strings.HasPrefix(k, full) {
			seen[k] = true
			if err := fn([]byte(k[1:]), v); err != nil {
				return err
			}
		}
	}
	for k, v := range t.snapshot {
		if seen[k] || t.deletes[k] {
			continue
		}
		if strings.HasPrefix(k, full) {
			if err := fn([]byte(k[1:]), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *memoryTxn) Commit() error {
	if !t.writable {
		return nil
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for k := range t.deletes {
		delete(t.db.data, k)
	}
	for k, v := range t.writes {
		t.db.data[k] = v
	}
	return nil
}

func (t *memoryTxn) Discard() {
	t.writes = nil
	t.deletes = nil
}
