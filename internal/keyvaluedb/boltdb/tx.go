package boltdb

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
)

// Tx is a read-write transaction over the state bucket. Reads observe the
// transaction's own pending writes, which the event processor needs when it
// moves several reserved balances in one event.
type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return false, err
	}
	data := t.tx.Bucket(stateBucket).Get(key)
	if data == nil {
		return false, nil
	}
	if err := cbor.Unmarshal(data, value); err != nil {
		return true, fmt.Errorf("bolt tx read failed, %w", err)
	}
	return true, nil
}

func (t *Tx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for key %x, %w", key, err)
	}
	if err := t.tx.Bucket(stateBucket).Put(key, data); err != nil {
		return fmt.Errorf("bolt tx write failed, %w", err)
	}
	return nil
}

func (t *Tx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if err := t.tx.Bucket(stateBucket).Delete(key); err != nil {
		return fmt.Errorf("bolt tx delete failed, %w", err)
	}
	return nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("bolt tx commit failed, %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
