package memorydb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
)

func TestMemoryDBReadWriteDelete(t *testing.T) {
	db := New()
	require.True(t, db.Empty())

	var value string
	found, err := db.Read([]byte("key"), &value)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.Write([]byte("key"), "the value"))
	found, err = db.Read([]byte("key"), &value)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "the value", value)

	require.NoError(t, db.Delete([]byte("key")))
	found, err = db.Read([]byte("key"), &value)
	require.NoError(t, err)
	require.False(t, found)

	empty, err := keyvaluedb.IsEmpty(db)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestMemoryDBInvalidInputs(t *testing.T) {
	db := New()
	require.Error(t, db.Write(nil, "x"))
	require.Error(t, db.Write([]byte{}, "x"))
	var nilPtr *string
	require.Error(t, db.Write([]byte("k"), nilPtr))
	_, err := db.Read(nil, &struct{}{})
	require.Error(t, err)
	require.Error(t, db.Delete(nil))
}

func TestMemoryDBIterator(t *testing.T) {
	db := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Write([]byte{byte(i)}, i))
	}

	it := db.First()
	defer func() { require.NoError(t, it.Close()) }()
	var keys []byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key()[0])
	}
	require.Equal(t, []byte{0, 1, 2, 3, 4}, keys)

	last := db.Last()
	defer func() { require.NoError(t, last.Close()) }()
	require.Equal(t, []byte{4}, last.Key())
	last.Prev()
	require.Equal(t, []byte{3}, last.Key())

	found := db.Find([]byte{2})
	defer func() { require.NoError(t, found.Close()) }()
	require.Equal(t, []byte{2}, found.Key())
	var value int
	require.NoError(t, found.Value(&value))
	require.Equal(t, 2, value)

	missing := db.Find([]byte{9})
	defer func() { require.NoError(t, missing.Close()) }()
	require.False(t, missing.Valid())
}

func TestMemoryDBTx(t *testing.T) {
	db := New()
	require.NoError(t, db.Write([]byte("persisted"), 1))

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Write([]byte("pending"), 2))

	// pending writes are visible inside the tx only
	var value int
	found, err := tx.Read([]byte("pending"), &value)
	require.NoError(t, err)
	require.True(t, found)
	found, err = db.Read([]byte("pending"), &value)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tx.Commit())
	found, err = db.Read([]byte("pending"), &value)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, value)
}

func TestMemoryDBTxRollback(t *testing.T) {
	db := New()
	require.NoError(t, db.Write([]byte("key"), 1))

	tx, err := db.StartTx()
	require.NoError(t, err)
	require.NoError(t, tx.Delete([]byte("key")))
	require.NoError(t, tx.Write([]byte("other"), 2))
	require.NoError(t, tx.Rollback())

	var value int
	found, err := db.Read([]byte("key"), &value)
	require.NoError(t, err)
	require.True(t, found)
	found, err = db.Read([]byte("other"), &value)
	require.NoError(t, err)
	require.False(t, found)

	// a finished tx refuses further operations
	require.Error(t, tx.Write([]byte("more"), 3))
}

func TestMemoryDBWriteError(t *testing.T) {
	db := New()
	db.SetWriteError(fmt.Errorf("disk full"))
	require.ErrorContains(t, db.Write([]byte("key"), 1), "disk full")
	db.SetWriteError(nil)
	require.NoError(t, db.Write([]byte("key"), 1))
}
