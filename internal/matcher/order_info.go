package matcher

type (
	OrderStatus uint8

	// OrderInfo is the mutable execution state of an order.
	OrderInfo struct {
		Amount       int64
		Filled       int64
		Canceled     bool
		MinAmount    int64 // smallest executable amount step, 0 when unknown
		RemainingFee int64
		// UnsafeTotalSpend accumulates the spend-asset volume of executed fills.
		// Rounding makes it differ from SpendAmount(Filled) by up to one unit
		// per fill, hence "unsafe" for obligation arithmetic.
		UnsafeTotalSpend *int64
	}
)

const (
	NotFound OrderStatus = iota
	Accepted
	PartiallyFilled
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case NotFound:
		return "NotFound"
	case Accepted:
		return "Accepted"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further event can change the order state.
func (s OrderStatus) Terminal() bool {
	return s == Filled || s == Cancelled
}

// newOrderInfo is the state of an order no event has been applied to yet.
func newOrderInfo(o *Order) OrderInfo {
	return OrderInfo{
		Amount:       o.Amount,
		MinAmount:    o.MinAmount(),
		RemainingFee: o.MatcherFee,
	}
}

func (i OrderInfo) Remaining() int64 {
	return i.Amount - i.Filled
}

// Status derives the order status. An order whose remainder is below the
// minimum executable amount step can never execute again and counts as
// filled.
func (i OrderInfo) Status() OrderStatus {
	switch {
	case i.Amount == 0:
		return NotFound
	case i.Canceled:
		return Cancelled
	case i.Remaining() < minAmountStep(i.MinAmount):
		return Filled
	case i.Filled > 0:
		return PartiallyFilled
	default:
		return Accepted
	}
}

func minAmountStep(minAmount int64) int64 {
	if minAmount <= 0 {
		return 1
	}
	return minAmount
}

// obligations returns what the order still locks per asset: the outstanding
// spend volume in the spend asset plus the outstanding fee in the native
// asset. When the receive side also pays out native asset, the expected
// receive volume covers the fee first ("fee netting") and only the shortfall
// stays reserved. Terminal orders lock nothing.
func obligations(o *Order, info OrderInfo) map[string]int64 {
	out := make(map[string]int64, 2)
	if info.Status().Terminal() {
		return out
	}
	remaining := info.Remaining()
	if spend := o.SpendAmount(remaining); spend > 0 {
		out[assetKey(o.SpendAsset())] += spend
	}
	fee := info.RemainingFee
	if o.ReceiveAsset().IsNative() {
		fee -= o.ReceiveAmount(remaining)
	}
	if fee > 0 {
		out[assetKey(nil)] += fee
	}
	return out
}

// assetKey is the map/store key form of an asset id; native sorts first.
func assetKey(a AssetID) string {
	if a.IsNative() {
		return "\x00"
	}
	return "\x01" + string(a)
}

func assetFromKey(key string) AssetID {
	if key == "\x00" {
		return nil
	}
	return AssetID(key[1:])
}
