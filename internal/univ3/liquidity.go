package univ3

import "math/big"

// Amounts is the token pair a liquidity magnitude represents over a range.
type Amounts struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

func mulDiv(a, b, denominator *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denominator)
}

func ordered(sqrtLower, sqrtUpper *big.Int) (*big.Int, *big.Int) {
	if sqrtLower.Cmp(sqrtUpper) > 0 {
		return sqrtUpper, sqrtLower
	}
	return sqrtLower, sqrtUpper
}

// Amount0ForLiquidity returns the token0 amount covering [sqrtLower, sqrtUpper].
func Amount0ForLiquidity(sqrtLower, sqrtUpper, liquidity *big.Int) *big.Int {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	diff := new(big.Int).Sub(upper, lower)
	out := mulDiv(new(big.Int).Mul(liquidity, Q96), diff, upper)
	return out.Quo(out, lower)
}

// Amount1ForLiquidity returns the token1 amount covering [sqrtLower, sqrtUpper].
func Amount1ForLiquidity(sqrtLower, sqrtUpper, liquidity *big.Int) *big.Int {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	return mulDiv(liquidity, new(big.Int).Sub(upper, lower), Q96)
}

// AmountsForLiquidity splits a liquidity magnitude into token amounts at the
// given price: all token0 below the range, all token1 above it, and a mix
// inside it with sqrtPrice as the moving bound.
func AmountsForLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity *big.Int) Amounts {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	switch {
	case sqrtPrice.Cmp(lower) <= 0:
		return Amounts{
			Amount0: Amount0ForLiquidity(lower, upper, liquidity),
			Amount1: big.NewInt(0),
		}
	case sqrtPrice.Cmp(upper) <= 0:
		return Amounts{
			Amount0: Amount0ForLiquidity(sqrtPrice, upper, liquidity),
			Amount1: Amount1ForLiquidity(lower, sqrtPrice, liquidity),
		}
	default:
		return Amounts{
			Amount0: big.NewInt(0),
			Amount1: Amount1ForLiquidity(lower, upper, liquidity),
		}
	}
}

// LiquidityForAmount0 inverts Amount0ForLiquidity.
func LiquidityForAmount0(sqrtLower, sqrtUpper, amount0 *big.Int) *big.Int {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	intermediate := mulDiv(lower, upper, Q96)
	return mulDiv(amount0, intermediate, new(big.Int).Sub(upper, lower))
}

// LiquidityForAmount1 inverts Amount1ForLiquidity.
func LiquidityForAmount1(sqrtLower, sqrtUpper, amount1 *big.Int) *big.Int {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	return mulDiv(amount1, Q96, new(big.Int).Sub(upper, lower))
}

// LiquidityForAmounts returns the maximal liquidity both amounts can fund at
// the given price; inside the range the smaller single-sided estimate is the
// binding constraint.
func LiquidityForAmounts(sqrtPrice, sqrtLower, sqrtUpper, amount0, amount1 *big.Int) *big.Int {
	lower, upper := ordered(sqrtLower, sqrtUpper)
	switch {
	case sqrtPrice.Cmp(lower) <= 0:
		return LiquidityForAmount0(lower, upper, amount0)
	case sqrtPrice.Cmp(upper) < 0:
		liquidity0 := LiquidityForAmount0(sqrtPrice, upper, amount0)
		liquidity1 := LiquidityForAmount1(lower, sqrtPrice, amount1)
		if liquidity0.Cmp(liquidity1) < 0 {
			return liquidity0
		}
		return liquidity1
	default:
		return LiquidityForAmount1(lower, upper, amount1)
	}
}
