package matcher

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/nereus-network/nereus/internal/types"
)

// PriceConstant scales order prices: price is the amount of price asset
// (in its minimal units) for 10^8 minimal units of amount asset.
const PriceConstant = 100_000_000

type (
	// AssetID identifies an asset; nil means the native asset.
	AssetID []byte

	// AssetPair is the traded pair: prices are quoted in PriceAsset per
	// PriceConstant units of AmountAsset.
	AssetPair struct {
		AmountAsset AssetID
		PriceAsset  AssetID
	}

	OrderSide uint8

	// Order is a limit order as accepted by the matching engine.
	Order struct {
		ID              []byte
		SenderPublicKey types.PublicKey
		Pair            AssetPair
		Side            OrderSide
		Price           int64
		Amount          int64
		MatcherFee      int64
		Timestamp       int64
	}
)

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// IsNative reports whether the id denotes the native asset.
func (a AssetID) IsNative() bool {
	return len(a) == 0
}

func (a AssetID) Equal(b AssetID) bool {
	return bytes.Equal(a, b)
}

func (a AssetID) String() string {
	if a.IsNative() {
		return "NATIVE"
	}
	return base58.Encode(a)
}

// SpendAsset is the asset the order sender pays with.
func (o *Order) SpendAsset() AssetID {
	if o.Side == Buy {
		return o.Pair.PriceAsset
	}
	return o.Pair.AmountAsset
}

// ReceiveAsset is the asset the order sender is paid in.
func (o *Order) ReceiveAsset() AssetID {
	if o.Side == Buy {
		return o.Pair.AmountAsset
	}
	return o.Pair.PriceAsset
}

// SpendAmount converts an execution amount (in amount asset units) into the
// quantity of spend asset the sender pays for it.
func (o *Order) SpendAmount(amount int64) int64 {
	if o.Side == Buy {
		return priceVolume(amount, o.Price)
	}
	return amount
}

// ReceiveAmount converts an execution amount into the quantity of receive
// asset the sender is paid for it.
func (o *Order) ReceiveAmount(amount int64) int64 {
	if o.Side == Buy {
		return amount
	}
	return priceVolume(amount, o.Price)
}

// MinAmount is the smallest executable amount step at the order price: any
// smaller amount converts to zero price asset volume.
func (o *Order) MinAmount() int64 {
	return ceilDiv(PriceConstant, o.Price)
}
