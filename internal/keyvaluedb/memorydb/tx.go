package memorydb

import (
	"fmt"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
)

// Tx buffers writes against a copy of the backing map; Commit swaps the copy
// in, Rollback throws it away.
type Tx struct {
	mem *MemoryDB
	db  map[string][]byte
}

func newMapTx(m *MemoryDB) (*Tx, error) {
	if m == nil {
		return nil, fmt.Errorf("memory db is nil")
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	db := make(map[string][]byte, len(m.db))
	for k, v := range m.db {
		db[k] = v
	}
	return &Tx{mem: m, db: db}, nil
}

func (t *Tx) Read(key []byte, v any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, v); err != nil {
		return false, err
	}
	if t.db == nil {
		return false, fmt.Errorf("memdb tx read failed, tx closed")
	}
	if data, ok := t.db[string(key)]; ok {
		return true, t.mem.decoder(data, v)
	}
	return false, nil
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if t.db == nil {
		return fmt.Errorf("memdb tx write failed, tx closed")
	}
	b, err := t.mem.encoder(value)
	if err != nil {
		return err
	}
	if t.mem.writeErr != nil {
		return t.mem.writeErr
	}
	t.db[string(key)] = b
	return nil
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.db == nil {
		return fmt.Errorf("memdb tx delete failed, tx closed")
	}
	delete(t.db, string(key))
	return nil
}

func (t *Tx) Rollback() error {
	t.db = nil
	return nil
}

func (t *Tx) Commit() error {
	t.mem.lock.Lock()
	defer t.mem.lock.Unlock()
	t.mem.db = t.db
	t.db = nil
	return nil
}
