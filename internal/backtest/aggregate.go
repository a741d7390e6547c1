package backtest

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"rangesim/internal/decmath"
	"rangesim/internal/model"
	"rangesim/internal/univ3"
)

// AggregateTrades collapses raw swap events into one trade per block and
// joins each with the pool's total active liquidity for the containing
// hour. Trades whose hour has no kline row are dropped. The result is
// ordered by ascending block number; an empty result is ErrNoTrades.
func AggregateTrades(pool *model.Pool, swaps []model.SwapEvent, klines []model.HourKline) ([]model.Trade, error) {
	klineByTs := make(map[int64]model.HourKline, len(klines))
	for _, k := range klines {
		klineByTs[k.Ts] = k
	}

	groups := make(map[int64][]model.SwapEvent)
	for _, swap := range swaps {
		groups[swap.BlockNumber] = append(groups[swap.BlockNumber], swap)
	}

	trades := make([]model.Trade, 0, len(groups))
	for block, group := range groups {
		last := group[len(group)-1]

		amount0 := decimal.Zero
		amount1 := decimal.Zero
		for _, swap := range group {
			if swap.Amount0.Sign() > 0 {
				amount0 = amount0.Add(swap.Amount0)
			}
			if swap.Amount1.Sign() > 0 {
				amount1 = amount1.Add(swap.Amount1)
			}
		}

		gasPrice := last.GasPrice
		if len(group) > 1 {
			prices := make([]decimal.Decimal, 0, len(group))
			for _, swap := range group {
				prices = append(prices, swap.GasPrice)
			}
			median, err := medianOf(prices)
			if err != nil {
				return nil, fmt.Errorf("median gas price for block %d: %w", block, err)
			}
			gasPrice = median
		}

		price, err := univ3.PriceAtTick(pool, last.Tick)
		if err != nil {
			return nil, fmt.Errorf("price at tick %d: %w", last.Tick, err)
		}

		kline, ok := klineByTs[decmath.AlignHour(last.Ts)]
		if !ok {
			continue
		}

		trades = append(trades, model.Trade{
			BlockNumber: block,
			Ts:          last.Ts,
			Tick:        last.Tick,
			Amount0:     amount0,
			Amount1:     amount1,
			GasPrice:    gasPrice,
			Price:       price,
			Liquidity:   kline.Liquidity,
		})
	}

	if len(trades) == 0 {
		return nil, ErrNoTrades
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].BlockNumber < trades[j].BlockNumber
	})
	return trades, nil
}

// medianOf returns the median of the values: the middle element for odd
// counts, the truncating average of the two middle elements for even counts.
func medianOf(values []decimal.Decimal) (decimal.Decimal, error) {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		sum := sorted[mid-1].Add(sorted[mid])
		return decmath.SafeDiv(sum, decimal.NewFromInt(2))
	}
	return sorted[mid], nil
}
