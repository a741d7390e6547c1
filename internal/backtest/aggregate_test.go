package backtest

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rangesim/internal/model"
)

func klineAt(ts int64) model.HourKline {
	return model.HourKline{Pair: "WETH-USDC", Ts: ts, Liquidity: decimal.New(1, 21)}
}

func TestAggregateTradesSingleEvent(t *testing.T) {
	pool := testPool()
	swaps := []model.SwapEvent{{
		Pair:        pool.Pair,
		Ts:          7210,
		Amount0:     decimal.NewFromInt(5),
		Amount1:     decimal.NewFromInt(-3),
		Tick:        120,
		BlockNumber: 42,
		GasPrice:    decimal.New(30, 9),
	}}

	got, err := AggregateTrades(pool, swaps, []model.HourKline{klineAt(7200)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d trades, want 1", len(got))
	}

	trade := got[0]
	if trade.BlockNumber != 42 || trade.Ts != 7210 || trade.Tick != 120 {
		t.Fatalf("trade identity = %+v", trade)
	}
	if !trade.Amount0.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("amount0 = %s, want 5", trade.Amount0)
	}
	// Negative legs do not contribute to volume.
	if !trade.Amount1.IsZero() {
		t.Fatalf("amount1 = %s, want 0", trade.Amount1)
	}
	if !trade.GasPrice.Equal(decimal.New(30, 9)) {
		t.Fatalf("gas price = %s", trade.GasPrice)
	}
	if !trade.Liquidity.Equal(decimal.New(1, 21)) {
		t.Fatalf("liquidity = %s", trade.Liquidity)
	}
}

func TestAggregateTradesBlockMerge(t *testing.T) {
	pool := testPool()
	swaps := []model.SwapEvent{
		{Pair: pool.Pair, Ts: 3600, Amount0: decimal.NewFromInt(-5), Amount1: decimal.NewFromInt(2), Tick: 10, BlockNumber: 7, GasPrice: decimal.New(10, 9)},
		{Pair: pool.Pair, Ts: 3605, Amount0: decimal.NewFromInt(4), Amount1: decimal.NewFromInt(3), Tick: 20, BlockNumber: 7, GasPrice: decimal.New(20, 9)},
	}

	got, err := AggregateTrades(pool, swaps, []model.HourKline{klineAt(3600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d trades, want 1", len(got))
	}

	trade := got[0]
	// Positive legs sum, the last event stamps tick and ts.
	if !trade.Amount0.Equal(decimal.NewFromInt(4)) || !trade.Amount1.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("amounts = %s, %s", trade.Amount0, trade.Amount1)
	}
	if trade.Tick != 20 || trade.Ts != 3605 {
		t.Fatalf("tick/ts = %d/%d", trade.Tick, trade.Ts)
	}
	// Even count: truncating average of the middle pair.
	if !trade.GasPrice.Equal(decimal.New(15, 9)) {
		t.Fatalf("gas price = %s, want 15 gwei", trade.GasPrice)
	}
}

func TestAggregateTradesMedianOdd(t *testing.T) {
	pool := testPool()
	swaps := []model.SwapEvent{
		{Pair: pool.Pair, Ts: 3600, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 7, GasPrice: decimal.New(10, 9)},
		{Pair: pool.Pair, Ts: 3601, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 7, GasPrice: decimal.New(30, 9)},
		{Pair: pool.Pair, Ts: 3602, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 7, GasPrice: decimal.New(20, 9)},
	}

	got, err := AggregateTrades(pool, swaps, []model.HourKline{klineAt(3600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[0].GasPrice.Equal(decimal.New(20, 9)) {
		t.Fatalf("gas price = %s, want 20 gwei", got[0].GasPrice)
	}
}

func TestAggregateTradesDropsHoursWithoutKline(t *testing.T) {
	pool := testPool()
	swaps := []model.SwapEvent{
		{Pair: pool.Pair, Ts: 3600, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 1, GasPrice: decimal.New(10, 9)},
		{Pair: pool.Pair, Ts: 7200, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 2, GasPrice: decimal.New(10, 9)},
	}

	got, err := AggregateTrades(pool, swaps, []model.HourKline{klineAt(3600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].BlockNumber != 1 {
		t.Fatalf("trades = %+v, want only block 1", got)
	}

	_, err = AggregateTrades(pool, swaps, []model.HourKline{klineAt(10800)})
	if !errors.Is(err, ErrNoTrades) {
		t.Fatalf("expected ErrNoTrades, got %v", err)
	}
}

func TestAggregateTradesOrderedByBlock(t *testing.T) {
	pool := testPool()
	swaps := []model.SwapEvent{
		{Pair: pool.Pair, Ts: 3600, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 9, GasPrice: decimal.New(10, 9)},
		{Pair: pool.Pair, Ts: 3601, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 3, GasPrice: decimal.New(10, 9)},
		{Pair: pool.Pair, Ts: 3602, Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), Tick: 0, BlockNumber: 6, GasPrice: decimal.New(10, 9)},
	}

	got, err := AggregateTrades(pool, swaps, []model.HourKline{klineAt(3600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocks := []int64{got[0].BlockNumber, got[1].BlockNumber, got[2].BlockNumber}
	if blocks[0] != 3 || blocks[1] != 6 || blocks[2] != 9 {
		t.Fatalf("block order = %v", blocks)
	}
}
