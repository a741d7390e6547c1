package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"rangesim/internal/decmath"
)

// maxDrawdown walks the NAV index series tracking the running peak and the
// lowest point since that peak, flushing the open segment at the end.
func maxDrawdown(series []decimal.Decimal) (decimal.Decimal, error) {
	maxDraw := decimal.Zero
	peak := decimal.Zero
	low := decimal.Zero

	for _, v := range series {
		if v.Cmp(peak) >= 0 {
			if peak.Cmp(low) > 0 {
				draw, err := decmath.SafeDiv(peak.Sub(low), peak)
				if err != nil {
					return decimal.Zero, err
				}
				if draw.Cmp(maxDraw) > 0 {
					maxDraw = draw
				}
			}
			peak = v
			low = v
		} else if v.Cmp(low) < 0 {
			low = v
		}
	}

	draw, err := decmath.SafeDiv(peak.Sub(low), peak)
	if err != nil {
		return decimal.Zero, err
	}
	if draw.Cmp(maxDraw) > 0 {
		maxDraw = draw
	}
	return maxDraw, nil
}

// hoursPerYear annualizes the hourly return variance.
var hoursPerYear = decimal.NewFromInt(24 * 365)

// volatility is the annualized standard deviation of the hourly NAV-index
// returns. The series must be hour-aligned and hold at least two points.
func volatility(series []decimal.Decimal) (decimal.Decimal, error) {
	returns := make([]decimal.Decimal, 0, len(series))
	for i := 1; i < len(series); i++ {
		r, err := decmath.SafeDiv(series[i], series[i-1])
		if err != nil {
			return decimal.Zero, err
		}
		returns = append(returns, r.Sub(decimal.NewFromInt(1)))
	}

	n := decimal.NewFromInt(int64(len(returns)))
	sum := decimal.Zero
	for _, r := range returns {
		sum = sum.Add(r)
	}
	mean, err := decmath.SafeDiv(sum, n)
	if err != nil {
		return decimal.Zero, err
	}

	sq := decimal.Zero
	for _, r := range returns {
		diff := r.Sub(mean)
		sq = sq.Add(diff.Mul(diff))
	}
	variance, err := decmath.SafeDiv(sq, n)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromFloat(math.Sqrt(variance.Mul(hoursPerYear).InexactFloat64())), nil
}

// winRate is the share of winning rebalance legs. A run with no rebalances
// has no win rate; the closing leg inflates the denominator by one.
func winRate(reUp, reDown, reWin int) decimal.Decimal {
	if reUp+reDown == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(float64(reWin) / float64(reUp+reDown+1))
}
