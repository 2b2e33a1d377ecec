package boltdb

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

// Itr walks the state bucket through a read-only bolt transaction that stays
// open until Close, so the caller sees one consistent snapshot.
type Itr struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	key    []byte
	value  []byte
}

func newIterator(db *bolt.DB) *Itr {
	tx, err := db.Begin(false)
	if err != nil {
		// not positionable, Valid() stays false
		return &Itr{}
	}
	return &Itr{
		tx:     tx,
		cursor: tx.Bucket(stateBucket).Cursor(),
	}
}

func (it *Itr) first() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.First()
}

func (it *Itr) last() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Last()
}

func (it *Itr) seek(key []byte) {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Seek(key)
}

func (it *Itr) Next() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Next()
}

func (it *Itr) Prev() {
	if !it.Valid() {
		return
	}
	it.key, it.value = it.cursor.Prev()
}

func (it *Itr) Valid() bool {
	return it.key != nil
}

func (it *Itr) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

func (it *Itr) Value(value any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator invalid")
	}
	return cbor.Unmarshal(it.value, value)
}

func (it *Itr) Close() error {
	if it.tx == nil {
		return nil
	}
	tx := it.tx
	it.tx, it.cursor, it.key, it.value = nil, nil, nil, nil
	return tx.Rollback()
}
