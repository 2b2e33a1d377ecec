package keyvaluedb

import "fmt"

// Reader reads single values from the store.
type Reader interface {
	// Read reads the value stored under key into value. Returns false if the
	// key is not present.
	Read(key []byte, value any) (bool, error)
}

// Writer mutates single values in the store.
type Writer interface {
	// Write inserts the given value into the store, replacing any prior value.
	Write(key []byte, value any) error
	// Delete removes the key from the store.
	Delete(key []byte) error
}

// Iterator walks the store in binary key order. A fresh iterator is not
// positioned; one of the Iterable methods positions it.
// NB! an iterator MUST be released with Close or the next store mutation may
// deadlock.
type Iterator interface {
	// Next moves the iterator to the next key in ascending order.
	Next()
	// Prev moves the iterator to the previous key.
	Prev()
	// Valid reports whether the iterator currently points at a key/value pair.
	Valid() bool
	// Key returns the current key, or nil if the iterator is not valid.
	Key() []byte
	// Value decodes the current value into value; errors if not valid.
	Value(value any) error
	// Close releases the iterator. May be called more than once.
	Close() error
}

// Iterable creates iterators over the ordered key space.
type Iterable interface {
	// First positions a forward iterator on the smallest key. Not valid when
	// the store is empty.
	First() Iterator
	// Last positions an iterator on the largest key; walk it backwards with
	// Prev. Not valid when the store is empty.
	Last() Iterator
	// Find positions a forward iterator on the smallest key >= key. Not valid
	// when no such key exists.
	Find(key []byte) Iterator
}

// DBTransaction is a read-write transaction. Every transaction MUST be
// finished with either Commit or Rollback; only one read-write transaction
// is active at a time.
type DBTransaction interface {
	Reader
	Writer
	// Commit atomically applies all pending changes.
	Commit() error
	// Rollback discards all pending changes.
	Rollback() error
}

// DBTx starts read-write transactions.
type DBTx interface {
	StartTx() (DBTransaction, error)
}

// KeyValueDB is the transactional ordered map the chain and matcher state
// sit behind.
type KeyValueDB interface {
	Reader
	Writer
	Iterable
	DBTx
}

// IsEmpty returns true if the store holds no keys.
func IsEmpty(db KeyValueDB) (empty bool, err error) {
	if db == nil {
		return true, fmt.Errorf("db is nil")
	}
	it := db.First()
	defer func() { err = it.Close() }()
	return !it.Valid(), err
}
