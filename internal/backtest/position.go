package backtest

import (
	"math/big"

	"github.com/shopspring/decimal"

	"rangesim/internal/decmath"
	"rangesim/internal/model"
	"rangesim/internal/univ3"
)

// trimScale is the fractional precision of the trim formula's divisions.
const trimScale = 18

var flatLiquidityUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TrimResult describes the pre-deposit swap that matches a token pair to
// the pool's current price ratio. Token identifies the side being sold.
type TrimResult struct {
	SwapAmount *big.Int
	Token      int
}

// AddResult describes one liquidity deposit: the liquidity obtained, the
// amounts it locked, the trim swap's fee, the un-deployed remainder per
// token and the side the trim sold.
type AddResult struct {
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
	SwapFee   *big.Int
	Change0   *big.Int
	Change1   *big.Int
	SwapToken int
}

// RemoveResult describes one liquidity withdrawal and the closing leg's
// instantaneous return against the previous deployed basis.
type RemoveResult struct {
	Amount0 *big.Int
	Amount1 *big.Int
	Return  decimal.Decimal
}

// NavValue is a position valuation in the quote token: the absolute net
// value and the index relative to the opening basis.
type NavValue struct {
	NetValue decimal.Decimal
	Index    decimal.Decimal
}

// trimInfo solves r0/r1 = (a0-x)/(a1+y) with y = x*p*(1-fee) for the amount
// of the over-weighted token to swap. Balanced inputs need no swap.
func trimInfo(r0, r1, a0, a1, price *big.Int, poolFee decimal.Decimal) (TrimResult, error) {
	left := new(big.Int).Mul(a0, r1)
	right := new(big.Int).Mul(a1, r0)

	switch left.Cmp(right) {
	case 1:
		// Excess token0, sell token0 for token1.
		part1 := decimal.NewFromBigInt(new(big.Int).Sub(left, right), 0)
		feeKeep := decimal.NewFromInt(1).Sub(poolFee)
		part2 := decimal.NewFromBigInt(price, 0).
			Mul(decimal.NewFromBigInt(r0, 0)).
			Mul(feeKeep).
			Add(decimal.NewFromBigInt(r1, 0))
		if part2.IsZero() {
			return TrimResult{}, decmath.ErrDivisionUndefined
		}
		amt, _ := part1.QuoRem(part2, trimScale)
		return TrimResult{SwapAmount: amt.BigInt(), Token: 0}, nil
	case -1:
		// Excess token1, sell token1 for token0.
		part1 := decimal.NewFromBigInt(new(big.Int).Sub(right, left), 0)
		feeKeep := decimal.NewFromInt(1).Sub(poolFee)
		priceDec := decimal.NewFromBigInt(price, 0)
		if priceDec.IsZero() {
			return TrimResult{}, decmath.ErrDivisionUndefined
		}
		inner, _ := decimal.NewFromBigInt(r1, 0).Mul(feeKeep).QuoRem(priceDec, trimScale)
		part2 := inner.Add(decimal.NewFromBigInt(r0, 0))
		if part2.IsZero() {
			return TrimResult{}, decmath.ErrDivisionUndefined
		}
		amt, _ := part1.QuoRem(part2, trimScale)
		return TrimResult{SwapAmount: amt.BigInt(), Token: 1}, nil
	default:
		return TrimResult{SwapAmount: big.NewInt(0), Token: 0}, nil
	}
}

// addLiquidity trims the supplied amounts to the range's current token
// ratio, charges the pool fee on the swapped side, then deposits the
// maximal obtainable liquidity and reports the leftover per token.
func addLiquidity(pool *model.Pool, sqrtPrice, sqrtLower, sqrtUpper, price, total0, total1 *big.Int) (AddResult, error) {
	flat := univ3.AmountsForLiquidity(sqrtPrice, sqrtLower, sqrtUpper, flatLiquidityUnit)

	trim, err := trimInfo(flat.Amount0, flat.Amount1, total0, total1, price, pool.SwapFee)
	if err != nil {
		return AddResult{}, err
	}

	swapFee := decimal.NewFromBigInt(trim.SwapAmount, 0).Mul(pool.SwapFee).BigInt()
	netSwap := new(big.Int).Sub(trim.SwapAmount, swapFee)

	total0 = new(big.Int).Set(total0)
	total1 = new(big.Int).Set(total1)
	if trim.Token == 0 {
		total0.Sub(total0, trim.SwapAmount)
		total1.Add(total1, new(big.Int).Mul(netSwap, price))
	} else {
		if price.Sign() == 0 {
			return AddResult{}, decmath.ErrDivisionUndefined
		}
		total1.Sub(total1, trim.SwapAmount)
		total0.Add(total0, new(big.Int).Quo(netSwap, price))
	}

	liquidity := univ3.LiquidityForAmounts(sqrtPrice, sqrtLower, sqrtUpper, total0, total1)
	deployed := univ3.AmountsForLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity)

	return AddResult{
		Liquidity: liquidity,
		Amount0:   deployed.Amount0,
		Amount1:   deployed.Amount1,
		SwapFee:   swapFee,
		Change0:   new(big.Int).Sub(total0, deployed.Amount0),
		Change1:   new(big.Int).Sub(total1, deployed.Amount1),
		SwapToken: trim.Token,
	}, nil
}

// removeLiquidity withdraws the deployed amounts at the current price and
// values the closing leg against the basis deposited at the last add.
func removeLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity, price, basis0, basis1 *big.Int) (RemoveResult, error) {
	removed := univ3.AmountsForLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity)

	closing := decimal.NewFromBigInt(new(big.Int).Add(removed.Amount1, new(big.Int).Mul(removed.Amount0, price)), 0)
	opening := decimal.NewFromBigInt(new(big.Int).Add(basis1, new(big.Int).Mul(basis0, price)), 0)

	ratio, err := decmath.SafeDiv(closing, opening)
	if err != nil {
		return RemoveResult{}, err
	}

	return RemoveResult{
		Amount0: removed.Amount0,
		Amount1: removed.Amount1,
		Return:  ratio.Sub(decimal.NewFromInt(1)),
	}, nil
}

// commissionRate values the accrued commission against the deployed amounts,
// both in token1 terms at the integer tick price.
func commissionRate(amount0, amount1, commission0, commission1, price *big.Int) (decimal.Decimal, error) {
	deployed := new(big.Int).Add(amount1, new(big.Int).Mul(amount0, price))
	accrued := new(big.Int).Add(commission1, new(big.Int).Mul(commission0, price))
	return decmath.SafeDiv(decimal.NewFromBigInt(accrued, 0), decimal.NewFromBigInt(deployed, 0))
}

// netValueAndIndex values current holdings (deployed amounts at the trade's
// sqrt price, the un-deployed remainder and the accrued commission) in the
// quote token and relates them to the opening basis.
func netValueAndIndex(pool *model.Pool, sqrtPrice, sqrtLower, sqrtUpper, liquidity *big.Int, price decimal.Decimal, start0, start1, change0, change1, temp0, temp1 *big.Int) (NavValue, error) {
	deployed := univ3.AmountsForLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity)

	cur0 := new(big.Int).Add(deployed.Amount0, change0)
	cur0.Add(cur0, temp0)
	cur1 := new(big.Int).Add(deployed.Amount1, change1)
	cur1.Add(cur1, temp1)

	curHuman0 := decmath.ToHuman(cur0, pool.Decimal0)
	curHuman1 := decmath.ToHuman(cur1, pool.Decimal1)
	startHuman0 := decmath.ToHuman(start0, pool.Decimal0)
	startHuman1 := decmath.ToHuman(start1, pool.Decimal1)

	var nv, basis decimal.Decimal
	if pool.Reversed() {
		nv = curHuman0.Add(curHuman1.Mul(price))
		basis = startHuman0.Add(startHuman1.Mul(price))
	} else {
		nv = curHuman1.Add(curHuman0.Mul(price))
		basis = startHuman1.Add(startHuman0.Mul(price))
	}

	index, err := decmath.SafeDiv(nv, basis)
	if err != nil {
		return NavValue{}, err
	}
	return NavValue{NetValue: nv, Index: index}, nil
}

// netValue values a human-unit token pair in the quote token.
func netValue(pool *model.Pool, amount0, amount1, price decimal.Decimal) decimal.Decimal {
	if pool.Reversed() {
		return amount0.Add(amount1.Mul(price))
	}
	return amount1.Add(amount0.Mul(price))
}
