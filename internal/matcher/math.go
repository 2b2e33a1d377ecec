package matcher

import "github.com/holiman/uint256"

// priceVolume converts an amount-asset quantity to price-asset volume at the
// given price, rounding down. Intermediates are 128-bit safe.
func priceVolume(amount, price int64) int64 {
	v := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(price)))
	v.Div(v, uint256.NewInt(PriceConstant))
	return int64(v.Uint64())
}

// correctAmount clamps an execution amount down to the amount step allowed by
// the price: the settled price-asset volume is rounded down first and the
// result is the smallest amount producing that volume.
func correctAmount(amount, price int64) int64 {
	settled := new(uint256.Int).Mul(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(price)))
	settled.Div(settled, uint256.NewInt(PriceConstant))
	back := settled.Mul(settled, uint256.NewInt(PriceConstant))
	back.Add(back, uint256.NewInt(uint64(price-1)))
	back.Div(back, uint256.NewInt(uint64(price)))
	return int64(back.Uint64())
}

// ceilDiv divides rounding up, so prorated fees never under-collect.
func ceilDiv(a, b int64) int64 {
	v := new(uint256.Int).Add(uint256.NewInt(uint64(a)), uint256.NewInt(uint64(b-1)))
	v.Div(v, uint256.NewInt(uint64(b)))
	return int64(v.Uint64())
}

// prorateFee returns the outstanding matcher fee for the unfilled remainder.
func prorateFee(matcherFee, remaining, amount int64) int64 {
	if remaining <= 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(uint64(matcherFee)), uint256.NewInt(uint64(remaining)))
	v.Add(v, uint256.NewInt(uint64(amount-1)))
	v.Div(v, uint256.NewInt(uint64(amount)))
	return int64(v.Uint64())
}
