package boltdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
)

// The chain and matcher stores prefix their own keys, so a single bucket is
// enough; separate concerns go into separate db files instead.
var stateBucket = []byte("state")

// BoltDB implements the keyvaluedb interfaces on a bolt file with cbor
// encoded values.
type BoltDB struct {
	db *bolt.DB
}

// New opens dbFile, creating it when missing. Parent directories must exist.
func New(dbFile string) (*BoltDB, error) {
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 3 * time.Second}) // -rw-------
	if err != nil {
		return nil, fmt.Errorf("opening bolt file %s, %w", dbFile, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("creating state bucket, %w", err), db.Close())
	}
	return &BoltDB{db: db}, nil
}

func (db *BoltDB) Path() string {
	return db.db.Path()
}

func (db *BoltDB) Read(key []byte, value any) (found bool, err error) {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return false, err
	}
	err = db.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(stateBucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(data, value)
	})
	if err != nil {
		return found, fmt.Errorf("bolt db read failed, %w", err)
	}
	return found, nil
}

func (db *BoltDB) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for key %x, %w", key, err)
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(key, data)
	}); err != nil {
		return fmt.Errorf("bolt db write failed, %w", err)
	}
	return nil
}

func (db *BoltDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete(key)
	}); err != nil {
		return fmt.Errorf("bolt db delete failed, %w", err)
	}
	return nil
}

func (db *BoltDB) First() keyvaluedb.Iterator {
	it := newIterator(db.db)
	it.first()
	return it
}

func (db *BoltDB) Last() keyvaluedb.Iterator {
	it := newIterator(db.db)
	it.last()
	return it
}

func (db *BoltDB) Find(key []byte) keyvaluedb.Iterator {
	it := newIterator(db.db)
	it.seek(key)
	return it
}

// StartTx begins a read-write transaction. Bolt permits one at a time, which
// is exactly the write serialization the stores rely on.
func (db *BoltDB) StartTx() (keyvaluedb.DBTransaction, error) {
	tx, err := db.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to start bolt tx, %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (db *BoltDB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}
