package memorydb

import (
	"bytes"
	"fmt"
	"sort"
)

// Itr iterates over a sorted snapshot of the map keys taken at creation time.
type Itr struct {
	keys    [][]byte
	values  [][]byte
	decoder DecodeFn
	index   int
}

func newIterator(db map[string][]byte, d DecodeFn) *Itr {
	keys := make([][]byte, 0, len(db))
	for key := range db {
		keys = append(keys, []byte(key))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	values := make([][]byte, 0, len(keys))
	for _, key := range keys {
		values = append(values, db[string(key)])
	}
	return &Itr{
		index:   -1,
		decoder: d,
		keys:    keys,
		values:  values,
	}
}

func (it *Itr) first() {
	if len(it.keys) > 0 {
		it.index = 0
	}
}

func (it *Itr) last() {
	if len(it.keys) > 0 {
		it.index = len(it.keys) - 1
	}
}

func (it *Itr) seek(key []byte) {
	it.index = -1
	for i, k := range it.keys {
		if bytes.Compare(k, key) >= 0 {
			it.index = i
			return
		}
	}
}

func (it *Itr) Next() {
	if !it.Valid() {
		return
	}
	it.index++
	if it.index >= len(it.keys) {
		it.index = -1
	}
}

func (it *Itr) Prev() {
	if !it.Valid() {
		return
	}
	it.index--
}

func (it *Itr) Valid() bool {
	return it.index >= 0 && it.index < len(it.keys)
}

func (it *Itr) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.keys[it.index]
}

func (it *Itr) Value(v any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator invalid")
	}
	return it.decoder(it.values[it.index], v)
}

func (it *Itr) Close() error {
	return nil
}
