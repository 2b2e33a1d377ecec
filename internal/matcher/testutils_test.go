package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nereus-network/nereus/internal/keyvaluedb/memorydb"
	"github.com/nereus-network/nereus/internal/types"
)

const defaultMatcherFee = 300000

// asset returns a 32-byte asset id padded from the given ASCII prefix.
func asset(name string) AssetID {
	id := make(AssetID, 32)
	copy(id, name)
	return id
}

func account(name string) types.PublicKey {
	var key types.PublicKey
	copy(key[:], name)
	return key
}

type orderSpec struct {
	id     string
	sender string
	pair   AssetPair
	side   OrderSide
	price  int64
	amount int64
	fee    int64
	ts     int64
}

func order(spec orderSpec) *Order {
	fee := spec.fee
	if fee == 0 {
		fee = defaultMatcherFee
	}
	return &Order{
		ID:              []byte(spec.id),
		SenderPublicKey: account(spec.sender),
		Pair:            spec.pair,
		Side:            spec.side,
		Price:           spec.price,
		Amount:          spec.amount,
		MatcherFee:      fee,
		Timestamp:       spec.ts,
	}
}

func initOrderHistory(t *testing.T) (*OrderHistory, *memorydb.MemoryDB) {
	t.Helper()
	db := memorydb.New()
	return NewOrderHistory(db), db
}

// requireReserved asserts the reserved balance of one (account, asset) pair.
func requireReserved(t *testing.T, h *OrderHistory, sender string, a AssetID, want int64) {
	t.Helper()
	got, err := h.ReservedBalance(account(sender), a)
	require.NoError(t, err)
	require.Equal(t, want, got, "reserved[%s, %s]", sender, a)
}

// requireInvariantR recomputes every account's reserved balances from scratch
// over the given orders and asserts the store matches: reserved[a,x] must
// equal the sum of outstanding obligations of a's active orders in x, and
// must never be negative.
func requireInvariantR(t *testing.T, h *OrderHistory, orders ...*Order) {
	t.Helper()
	want := map[types.PublicKey]map[string]int64{}
	for _, o := range orders {
		info, found, err := h.OrderInfo(o.ID)
		require.NoError(t, err)
		if !found {
			continue
		}
		acc := want[o.SenderPublicKey]
		if acc == nil {
			acc = map[string]int64{}
			want[o.SenderPublicKey] = acc
		}
		for key, amount := range obligations(o, info) {
			acc[assetFromKey(key).String()] += amount
		}
	}
	seen := map[types.PublicKey]bool{}
	for _, o := range orders {
		if seen[o.SenderPublicKey] {
			continue
		}
		seen[o.SenderPublicKey] = true
		got, err := h.ReservedBalances(o.SenderPublicKey)
		require.NoError(t, err)
		for a, amount := range got {
			require.GreaterOrEqual(t, amount, int64(0), "reserved[%s, %s]", o.SenderPublicKey, a)
		}
		expected := want[o.SenderPublicKey]
		for a, amount := range expected {
			if amount == 0 {
				delete(expected, a)
			}
		}
		if len(expected) == 0 {
			require.Empty(t, got, "account %s", o.SenderPublicKey)
			continue
		}
		require.Equal(t, expected, got, "account %s", o.SenderPublicKey)
	}
}
