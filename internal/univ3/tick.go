// Package univ3 implements the tick, price and liquidity conversions of a
// Uniswap-V3-style concentrated liquidity pool.
package univ3

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"rangesim/internal/decmath"
	"rangesim/internal/model"
)

// Q96 is the fixed-point unit of sqrt prices (2^96).
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// PriceAtTick returns the human-readable decimal price at a tick, scaled by
// the pool's token decimals and flipped for reversed-quoted pools.
//
// The float64 power is deliberate: downstream fee and liquidity accounting
// is calibrated to this exact rounding, so the intermediate must not be
// replaced with an arbitrary-precision expansion.
func PriceAtTick(pool *model.Pool, tick int64) (decimal.Decimal, error) {
	a := decimal.NewFromFloat(math.Pow(1.0001, float64(tick)))
	b := decimal.NewFromFloat(math.Pow(10, float64(pool.DecimalDiff())))
	if pool.Reversed() {
		return decmath.SafeDiv(b, a)
	}
	return decmath.SafeDiv(a, b)
}

// SqrtPriceX96FromTick returns sqrt(1.0001^tick) in Q96 fixed point,
// truncated from the float64 intermediate.
func SqrtPriceX96FromTick(tick int64) *big.Int {
	v := math.Sqrt(math.Pow(1.0001, float64(tick))) * math.Pow(2, 96)
	return decimal.NewFromFloat(v).BigInt()
}

// TickPrice returns 1.0001^tick truncated to an integer. Prices below one
// truncate to zero; callers that divide by it must treat that as an
// undefined ratio.
func TickPrice(tick int64) *big.Int {
	return decimal.NewFromFloat(math.Pow(1.0001, float64(tick))).BigInt()
}

// FloorTick rounds a tick down to a multiple of spacing, toward negative
// infinity for negative ticks.
func FloorTick(tick int64, spacing int32) int64 {
	s := int64(spacing)
	compressed := tick / s
	if tick < 0 && tick%s != 0 {
		compressed--
	}
	return compressed * s
}
