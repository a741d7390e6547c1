package backtest

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"rangesim/internal/model"
	"rangesim/internal/univ3"
)

func tradeAt(t *testing.T, pool *model.Pool, block, ts, tick, gasGwei int64) model.Trade {
	t.Helper()
	price, err := univ3.PriceAtTick(pool, tick)
	if err != nil {
		t.Fatalf("price at tick %d: %v", tick, err)
	}
	return model.Trade{
		BlockNumber: block,
		Ts:          ts,
		Tick:        tick,
		Amount0:     decimal.NewFromInt(100),
		Amount1:     decimal.NewFromInt(100),
		GasPrice:    decimal.New(gasGwei, 9),
		Price:       price,
		Liquidity:   decimal.New(1, 21),
	}
}

func baseParams() model.Params {
	return model.Params{
		Pair:               "WETH-USDC",
		BoundaryThreshold:  1200,
		ReBalanceThreshold: 600,
		StartTs:            3600,
		Amount0:            decimal.NewFromInt(1000),
		Amount1:            decimal.NewFromInt(1000),
	}
}

func TestSimulateSignalTriggersRebalance(t *testing.T) {
	pool := testPool()
	params := baseParams()
	params.ReBalanceThreshold = 30

	// Center floors to 600, so tick 630 is exactly at the threshold.
	trades := []model.Trade{
		tradeAt(t, pool, 1, 3610, 630, 50),
		tradeAt(t, pool, 2, 7210, 660, 50),
	}

	result, err := simulate(pool, params, trades, true, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if len(result.events) != 4 {
		t.Fatalf("got %d events, want open + rebalance pair + close", len(result.events))
	}
	if result.events[1].Action != model.ActionRemove || result.events[2].Action != model.ActionAdd {
		t.Fatalf("rebalance pair = %s/%s", result.events[1].Action, result.events[2].Action)
	}
	if result.reUp != 1 || result.reDown != 0 {
		t.Fatalf("direction counts = up %d down %d, want 1/0", result.reUp, result.reDown)
	}

	remove := result.events[1]
	if remove.GasUsed != "0" {
		t.Fatalf("rebalance remove gas used = %s", remove.GasUsed)
	}
	if !strings.HasPrefix(remove.Liquidity, "-") {
		t.Fatalf("remove liquidity delta = %s, want negative", remove.Liquidity)
	}
	// The remove row reports the amounts deployed at the previous add.
	if remove.Carried0 != result.events[0].Amount0 || remove.Carried1 != result.events[0].Amount1 {
		t.Fatalf("remove carried (%s, %s), open deployed (%s, %s)",
			remove.Carried0, remove.Carried1, result.events[0].Amount0, result.events[0].Amount1)
	}
	if remove.GasPrice != "50000000000" {
		t.Fatalf("remove gas price = %s", remove.GasPrice)
	}

	add := result.events[2]
	if add.GasUsed != "400000" {
		t.Fatalf("rebalance add gas used = %s", add.GasUsed)
	}
}

func TestSimulateSignalClearedWithoutTrigger(t *testing.T) {
	pool := testPool()
	params := baseParams()

	// The first trade sits at the range center, so the signal evaluation
	// fails and clears it; the second trade would qualify but must not fire.
	trades := []model.Trade{
		tradeAt(t, pool, 1, 3610, 0, 50),
		tradeAt(t, pool, 2, 7210, 600, 50),
	}

	result, err := simulate(pool, params, trades, true, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(result.events) != 2 {
		t.Fatalf("got %d events, want open and close only", len(result.events))
	}
	if result.reUp+result.reDown != 0 {
		t.Fatalf("unexpected rebalances: up %d down %d", result.reUp, result.reDown)
	}
}

func TestSimulateHighGasVetoesSignal(t *testing.T) {
	pool := testPool()
	params := baseParams()
	params.ReBalanceThreshold = 30

	trades := []model.Trade{tradeAt(t, pool, 1, 3610, 630, 300)}

	result, err := simulate(pool, params, trades, true, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(result.events) != 2 {
		t.Fatalf("got %d events, want no rebalance above the gas cutoff", len(result.events))
	}
}

func TestSimulateForcedInstruction(t *testing.T) {
	pool := testPool()
	params := baseParams()
	params.Rebalance = []model.RebalanceInstruction{{Block: 2, Lower: -60, Upper: 60}}

	// No signal, no price movement, gas above the cutoff: the instruction
	// alone forces the rebalance.
	trades := []model.Trade{
		tradeAt(t, pool, 1, 3610, 0, 50),
		tradeAt(t, pool, 2, 7210, 0, 300),
	}

	result, err := simulate(pool, params, trades, false, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(result.events) != 4 {
		t.Fatalf("got %d events, want forced rebalance pair", len(result.events))
	}
	if result.reDown != 1 {
		t.Fatalf("direction counts = up %d down %d, want down 1", result.reUp, result.reDown)
	}
}

func TestSimulateInvertedInstructionIgnored(t *testing.T) {
	pool := testPool()
	params := baseParams()
	params.Rebalance = []model.RebalanceInstruction{{Block: 2, Lower: 60, Upper: -60}}

	trades := []model.Trade{
		tradeAt(t, pool, 1, 3610, 0, 50),
		tradeAt(t, pool, 2, 7210, 0, 50),
	}

	result, err := simulate(pool, params, trades, false, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(result.events) != 2 {
		t.Fatalf("got %d events, want inverted bounds ignored", len(result.events))
	}
}

func TestSimulateNavSeries(t *testing.T) {
	pool := testPool()
	params := baseParams()

	trades := []model.Trade{
		tradeAt(t, pool, 1, 3610, 0, 50),
		tradeAt(t, pool, 2, 7210, 60, 50),
	}

	result, err := simulate(pool, params, trades, false, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if len(result.samples) != len(trades)+1 {
		t.Fatalf("got %d samples, want one per trade plus the opening point", len(result.samples))
	}
	first := result.samples[0]
	if first.ts != params.StartTs || !first.im.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("opening sample = (%d, %s), want (%d, 1)", first.ts, first.im, params.StartTs)
	}

	last := result.events[len(result.events)-1]
	if last.Action != model.ActionRemove || last.GasPrice != "50000000000" || last.GasUsed != "200000" {
		t.Fatalf("closing event = %+v", last)
	}
}

type fakeStore struct {
	pool   *model.Pool
	maxTs  int64
	klines []model.HourKline
	swaps  []model.SwapEvent
}

func (s *fakeStore) GetPool(context.Context, string) (*model.Pool, error) { return s.pool, nil }

func (s *fakeStore) LatestKlineTs(context.Context, string) (int64, bool, error) {
	return s.maxTs, s.maxTs != 0, nil
}

func (s *fakeStore) KlinesUpTo(context.Context, string, int64) ([]model.HourKline, error) {
	return s.klines, nil
}

func (s *fakeStore) SwapsBetween(context.Context, string, int64, int64) ([]model.SwapEvent, error) {
	return s.swaps, nil
}

func runnerFixture(t *testing.T) (*Runner, model.Params) {
	t.Helper()
	pool := testPool()
	ts0 := int64(472_222) * 3600

	swapAt := func(block, ts, tick int64) model.SwapEvent {
		return model.SwapEvent{
			Pair:        pool.Pair,
			Ts:          ts,
			Amount0:     decimal.NewFromInt(100),
			Amount1:     decimal.NewFromInt(100),
			Tick:        tick,
			BlockNumber: block,
			GasPrice:    decimal.New(50, 9),
		}
	}

	store := &fakeStore{
		pool:  pool,
		maxTs: ts0 + 7200,
		klines: []model.HourKline{
			{Pair: pool.Pair, Ts: ts0, Liquidity: decimal.New(1, 21)},
			{Pair: pool.Pair, Ts: ts0 + 3600, Liquidity: decimal.New(1, 21)},
			{Pair: pool.Pair, Ts: ts0 + 7200, Liquidity: decimal.New(1, 21)},
		},
		swaps: []model.SwapEvent{
			swapAt(1, ts0+10, 0),
			swapAt(2, ts0+3610, 60),
			swapAt(3, ts0+7210, -60),
		},
	}

	endTs := ts0 + 2*86400
	params := baseParams()
	params.StartTs = ts0
	params.EndTs = &endTs
	return NewRunner(store, nil), params
}

func TestRunnerRun(t *testing.T) {
	runner, params := runnerFixture(t)

	report, err := runner.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if ok, _ := regexp.MatchString(`^WETH-USDC_\d+_\d+$`, report.ReportName); !ok {
		t.Fatalf("report name = %s", report.ReportName)
	}
	if len(report.TradeInfo) != 2 {
		t.Fatalf("got %d trade events, want open and close", len(report.TradeInfo))
	}
	if report.GlobalInfo.ReBalanceTime != [2]int{0, 0} {
		t.Fatalf("rebalance counts = %v", report.GlobalInfo.ReBalanceTime)
	}
	if report.RiskInfo.WinRate != "0" {
		t.Fatalf("win rate = %s, want 0 with no rebalances", report.RiskInfo.WinRate)
	}

	if report.BaseInfo.StartTs != "1699999200" {
		t.Fatalf("start_ts = %s", report.BaseInfo.StartTs)
	}
	if report.BaseInfo.Tier != "0.003" {
		t.Fatalf("tier = %s", report.BaseInfo.Tier)
	}

	if len(report.TsList) != len(report.ImList) {
		t.Fatalf("ts/im length mismatch: %d vs %d", len(report.TsList), len(report.ImList))
	}
	if len(report.TsList) != 3 {
		t.Fatalf("got %d hourly points, want 3", len(report.TsList))
	}
}

func TestRunnerReportNamesAreUnique(t *testing.T) {
	runner, params := runnerFixture(t)

	a, err := runner.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := runner.Run(context.Background(), params)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a.ReportName == b.ReportName {
		t.Fatalf("duplicate report name %s", a.ReportName)
	}
}

func TestRunnerMissingInputs(t *testing.T) {
	runner, params := runnerFixture(t)
	store := runner.store.(*fakeStore)

	store.pool = nil
	if _, err := runner.Run(context.Background(), params); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}

	store.pool = testPool()
	store.swaps = nil
	if _, err := runner.Run(context.Background(), params); !errors.Is(err, ErrSwapMissing) {
		t.Fatalf("expected ErrSwapMissing, got %v", err)
	}

	store.swaps = []model.SwapEvent{{Pair: store.pool.Pair, Ts: params.StartTs, BlockNumber: 1,
		Amount0: decimal.NewFromInt(1), Amount1: decimal.NewFromInt(1), GasPrice: decimal.New(10, 9)}}
	store.maxTs = 0
	if _, err := runner.Run(context.Background(), params); !errors.Is(err, ErrKlineMissing) {
		t.Fatalf("expected ErrKlineMissing, got %v", err)
	}
}
