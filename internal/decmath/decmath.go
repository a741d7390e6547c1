// Package decmath holds the fixed truncation arithmetic shared by the
// backtest engine. Every division here rounds toward zero at a documented
// scale; substituting rounding would change report output.
package decmath

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DivScale is the fractional-digit count for general decimal division.
const DivScale = 36

// ErrDivisionUndefined reports a ratio with a zero denominator.
var ErrDivisionUndefined = errors.New("division undefined: zero denominator")

var (
	gwei  = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
	ether = decimal.New(1, 18)
)

// SafeDiv divides a by b truncated to DivScale fractional digits.
func SafeDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, ErrDivisionUndefined
	}
	q, _ := a.QuoRem(b, DivScale)
	return q, nil
}

// ToHuman converts a raw integer token amount to human units, truncated at
// the token's own decimal count.
func ToHuman(v *big.Int, decimals int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// ToRaw converts a human-unit amount to the token's raw integer units,
// truncating any fraction below the smallest unit.
func ToRaw(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

// ToGwei converts wei to gigawei, discarding the remainder.
func ToGwei(wei *big.Int) *big.Int {
	return new(big.Int).Quo(wei, gwei)
}

// ToEther converts wei to ether at DivScale precision.
func ToEther(wei *big.Int) decimal.Decimal {
	q, _ := decimal.NewFromBigInt(wei, 0).QuoRem(ether, DivScale)
	return q
}

// AlignHour floors a unix-seconds timestamp to the containing hour.
func AlignHour(ts int64) int64 {
	return ts / 3600 * 3600
}

// Plain renders a decimal as a plain non-exponential string with trailing
// fractional zeros removed, mirroring BigDecimal stripTrailingZeros output
// for non-zero values.
func Plain(d decimal.Decimal) string {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		end := len(s)
		for end > i+1 && s[end-1] == '0' {
			end--
		}
		if end == i+1 {
			end = i
		}
		s = s[:end]
	}
	return s
}
