package memorydb

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
)

type (
	EncodeFn func(v any) ([]byte, error)
	DecodeFn func(data []byte, v any) error

	// MemoryDB is an in-memory implementation of the keyvaluedb interfaces,
	// used in tests in place of the bolt store.
	MemoryDB struct {
		db       map[string][]byte
		encoder  EncodeFn
		decoder  DecodeFn
		writeErr error
		lock     sync.RWMutex
	}
)

// New creates an empty in-memory key value store. Values are encoded the same
// way the bolt store encodes them so store-backed code behaves identically.
func New() *MemoryDB {
	return &MemoryDB{
		db:      make(map[string][]byte),
		encoder: cbor.Marshal,
		decoder: cbor.Unmarshal,
	}
}

// Empty returns true if no values are stored.
func (db *MemoryDB) Empty() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.db) == 0
}

func (db *MemoryDB) Read(key []byte, value any) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return false, err
	}
	if data, ok := db.db[string(key)]; ok {
		return true, db.decoder(data, value)
	}
	return false, nil
}

func (db *MemoryDB) Write(key []byte, value any) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	b, err := db.encoder(value)
	if err != nil {
		return err
	}
	if db.writeErr != nil {
		return db.writeErr
	}
	db.db[string(key)] = b
	return nil
}

func (db *MemoryDB) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	delete(db.db, string(key))
	return nil
}

func (db *MemoryDB) First() keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.first()
	return it
}

func (db *MemoryDB) Last() keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.last()
	return it
}

func (db *MemoryDB) Find(key []byte) keyvaluedb.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()
	it := newIterator(db.db, db.decoder)
	it.seek(key)
	return it
}

func (db *MemoryDB) StartTx() (keyvaluedb.DBTransaction, error) {
	tx, err := newMapTx(db)
	if err != nil {
		return nil, fmt.Errorf("failed to start mem tx, %w", err)
	}
	return tx, nil
}

// SetWriteError makes all subsequent writes fail with err, for testing store
// failure paths. Pass nil to clear.
func (db *MemoryDB) SetWriteError(err error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.writeErr = err
}
