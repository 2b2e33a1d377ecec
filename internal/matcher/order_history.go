package matcher

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
	"github.com/nereus-network/nereus/internal/logger"
	"github.com/nereus-network/nereus/internal/types"
	"github.com/nereus-network/nereus/internal/util"
)

var log = logger.CreateForPackage()

// Key prefixes of the order state tables.
const (
	prefixOrderInfo   = 'i'
	prefixOrderMeta   = 'm'
	prefixReserved    = 'r'
	prefixActiveIndex = 'a'
	prefixAllIndex    = 'h'
)

// ErrNegativeReserve means applying an event would drive a reserved balance
// below zero. The accounting invariant is broken: this is a bug, not an input
// error, and must reach an operator.
var ErrNegativeReserve = errors.New("reserved balance would go negative")

// IsFatal reports whether err indicates corrupted accounting state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNegativeReserve)
}

type (
	// OrderHistory tracks every order through its lifecycle and maintains the
	// per-account reserved balances covering all open obligations. All
	// mutations go through the event methods, each applied as one store
	// transaction; a single writer at a time is enforced with a mutex.
	OrderHistory struct {
		mu sync.Mutex
		db keyvaluedb.KeyValueDB
	}

	// indexEntry is the decoded (timestamp, id) tail of an index key.
	indexEntry struct {
		timestamp uint64
		id        []byte
		status    OrderStatus
	}
)

func NewOrderHistory(db keyvaluedb.KeyValueDB) *OrderHistory {
	return &OrderHistory{db: db}
}

// OrderInfo returns the recorded state of the order, or false when the id is
// unknown.
func (h *OrderHistory) OrderInfo(id []byte) (OrderInfo, bool, error) {
	var info OrderInfo
	found, err := h.db.Read(orderInfoKey(id), &info)
	if err != nil {
		return OrderInfo{}, false, fmt.Errorf("order info read failed, %w", err)
	}
	return info, found, nil
}

// Status returns the derived status of the order; NotFound for unknown ids.
func (h *OrderHistory) Status(id []byte) (OrderStatus, error) {
	info, found, err := h.OrderInfo(id)
	if err != nil || !found {
		return NotFound, err
	}
	return info.Status(), nil
}

// Order reconstructs the order from the meta table.
func (h *OrderHistory) Order(id []byte) (*Order, bool, error) {
	o := &Order{}
	found, err := h.db.Read(orderMetaKey(id), o)
	if err != nil {
		return nil, false, fmt.Errorf("order meta read failed, %w", err)
	}
	return o, found, nil
}

// ReservedBalance returns the quantity of the asset locked against the
// account's open orders.
func (h *OrderHistory) ReservedBalance(sender types.PublicKey, asset AssetID) (int64, error) {
	var reserved int64
	if _, err := h.db.Read(reservedKey(sender, asset), &reserved); err != nil {
		return 0, fmt.Errorf("reserved balance read failed, %w", err)
	}
	return reserved, nil
}

// ReservedBalances returns all non-zero reserved balances of the account,
// keyed by asset.
func (h *OrderHistory) ReservedBalances(sender types.PublicKey) (_ map[string]int64, err error) {
	prefix := append([]byte{prefixReserved}, sender[:]...)
	it := h.db.Find(prefix)
	defer func() { err = errors.Join(err, it.Close()) }()

	out := make(map[string]int64)
	for ; it.Valid() && bytes.HasPrefix(it.Key(), prefix); it.Next() {
		var reserved int64
		if err := it.Value(&reserved); err != nil {
			return nil, fmt.Errorf("reserved balance read failed, %w", err)
		}
		asset := assetFromKey(string(it.Key()[len(prefix):]))
		out[asset.String()] = reserved
	}
	return out, nil
}

// ActiveOrderIDs returns ids of the account's active orders, newest first.
func (h *OrderHistory) ActiveOrderIDs(sender types.PublicKey) ([][]byte, error) {
	entries, err := h.scanIndex(prefixActiveIndex, sender)
	if err != nil {
		return nil, err
	}
	return idsNewestFirst(entries), nil
}

// ActiveOrderIDsForPair returns ids of the account's active orders on the
// given pair, newest first.
func (h *OrderHistory) ActiveOrderIDsForPair(sender types.PublicKey, pair AssetPair) ([][]byte, error) {
	entries, err := h.scanIndex(prefixActiveIndex, sender)
	if err != nil {
		return nil, err
	}
	var filtered []indexEntry
	for _, e := range entries {
		o, found, err := h.Order(e.id)
		if err != nil {
			return nil, err
		}
		if found && o.Pair.AmountAsset.Equal(pair.AmountAsset) && o.Pair.PriceAsset.Equal(pair.PriceAsset) {
			filtered = append(filtered, e)
		}
	}
	return idsNewestFirst(filtered), nil
}

// AllOrderIDs returns ids of all the account's orders: active orders first,
// then terminal ones, each group newest first.
func (h *OrderHistory) AllOrderIDs(sender types.PublicKey) ([][]byte, error) {
	entries, err := h.scanIndex(prefixAllIndex, sender)
	if err != nil {
		return nil, err
	}
	var active, terminal []indexEntry
	for _, e := range entries {
		if e.status.Terminal() {
			terminal = append(terminal, e)
		} else {
			active = append(active, e)
		}
	}
	return append(idsNewestFirst(active), idsNewestFirst(terminal)...), nil
}

// DeleteOrder removes a terminal order of the account from the history.
// Returns false when the order is unknown, still active, or not owned by
// sender.
func (h *OrderHistory) DeleteOrder(sender types.PublicKey, id []byte) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, found, err := h.Order(id)
	if err != nil || !found {
		return false, err
	}
	if o.SenderPublicKey != sender {
		return false, nil
	}
	info, found, err := h.OrderInfo(id)
	if err != nil || !found {
		return false, err
	}
	if !info.Status().Terminal() {
		return false, nil
	}

	tx, err := h.db.StartTx()
	if err != nil {
		return false, fmt.Errorf("order delete tx start failed, %w", err)
	}
	for _, key := range [][]byte{
		orderInfoKey(id),
		orderMetaKey(id),
		indexKey(prefixAllIndex, sender, o.Timestamp, id),
	} {
		if err = tx.Delete(key); err != nil {
			return false, errors.Join(fmt.Errorf("order delete failed, %w", err), tx.Rollback())
		}
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("order delete commit failed, %w", err)
	}
	return true, nil
}

func (h *OrderHistory) scanIndex(prefix byte, sender types.PublicKey) (_ []indexEntry, err error) {
	keyPrefix := append([]byte{prefix}, sender[:]...)
	it := h.db.Find(keyPrefix)
	defer func() { err = errors.Join(err, it.Close()) }()

	var entries []indexEntry
	for ; it.Valid() && bytes.HasPrefix(it.Key(), keyPrefix); it.Next() {
		tail := it.Key()[len(keyPrefix):]
		if len(tail) < 8 {
			return nil, fmt.Errorf("malformed index key %x", it.Key())
		}
		var status OrderStatus
		if err := it.Value(&status); err != nil {
			return nil, fmt.Errorf("index value read failed, %w", err)
		}
		entries = append(entries, indexEntry{
			timestamp: util.BytesToUint64(tail[:8]),
			id:        bytes.Clone(tail[8:]),
			status:    status,
		})
	}
	return entries, nil
}

// idsNewestFirst flips an ascending key scan into descending timestamp order.
func idsNewestFirst(entries []indexEntry) [][]byte {
	ids := make([][]byte, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		ids = append(ids, entries[i].id)
	}
	return ids
}

func orderInfoKey(id []byte) []byte {
	return append([]byte{prefixOrderInfo}, id...)
}

func orderMetaKey(id []byte) []byte {
	return append([]byte{prefixOrderMeta}, id...)
}

func reservedKey(sender types.PublicKey, asset AssetID) []byte {
	key := append([]byte{prefixReserved}, sender[:]...)
	return append(key, assetKey(asset)...)
}

func indexKey(prefix byte, sender types.PublicKey, timestamp int64, id []byte) []byte {
	key := append([]byte{prefix}, sender[:]...)
	key = append(key, util.Uint64ToBytes(uint64(timestamp))...)
	return append(key, id...)
}
