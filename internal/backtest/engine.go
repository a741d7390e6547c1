package backtest

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rangesim/internal/decmath"
	"rangesim/internal/model"
	"rangesim/internal/univ3"
)

// Gas constants used for the synthetic rows of the event log and the
// rebalance cost estimate.
var (
	avgRebalanceGasUsed = big.NewInt(400_000)
	gasPriceCutoffGwei  = big.NewInt(200)
)

const (
	initGasPrice  = "50000000000"
	initGasUsed   = "300000"
	closeGasUsed  = "200000"
	removeGasUsed = "0"
)

// Store supplies the read-only inputs of a run.
type Store interface {
	// GetPool returns the pool metadata, or nil when the pair is unknown.
	GetPool(ctx context.Context, pair string) (*model.Pool, error)
	// LatestKlineTs returns the newest kline timestamp for the pair.
	LatestKlineTs(ctx context.Context, pair string) (int64, bool, error)
	// KlinesUpTo returns all klines with ts <= endTs, ordered by ts.
	KlinesUpTo(ctx context.Context, pair string, endTs int64) ([]model.HourKline, error)
	// SwapsBetween returns swaps with startTs <= ts <= endTs.
	SwapsBetween(ctx context.Context, pair string, startTs, endTs int64) ([]model.SwapEvent, error)
}

// Runner executes backtest runs against a store.
type Runner struct {
	store  Store
	logger *zap.Logger
}

func NewRunner(store Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, logger: logger}
}

// Run reconstructs the position over the requested window and returns the
// performance report.
func (r *Runner) Run(ctx context.Context, params model.Params) (*model.Report, error) {
	started := time.Now()

	pool, err := r.store.GetPool(ctx, params.Pair)
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", params.Pair, err)
	}
	if pool == nil {
		return nil, fmt.Errorf("pair %s: %w", params.Pair, ErrPoolNotFound)
	}

	maxTs, ok, err := r.store.LatestKlineTs(ctx, params.Pair)
	if err != nil {
		return nil, fmt.Errorf("latest kline ts: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("pair %s: %w", params.Pair, ErrKlineMissing)
	}

	endTs := maxTs
	if params.EndTs != nil {
		endTs = *params.EndTs
	}
	startTs := params.StartTs

	// The kline series and the swap series are independent read-only
	// inputs, fetched eagerly in parallel.
	var klines []model.HourKline
	var swaps []model.SwapEvent
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		klines, err = r.store.KlinesUpTo(groupCtx, params.Pair, endTs)
		if err != nil {
			return fmt.Errorf("load klines: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		swaps, err = r.store.SwapsBetween(groupCtx, params.Pair, startTs, endTs)
		if err != nil {
			return fmt.Errorf("load swaps: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("pair %s: %w", params.Pair, ErrKlineMissing)
	}
	if len(swaps) == 0 {
		return nil, fmt.Errorf("pair %s: %w", params.Pair, ErrSwapMissing)
	}

	r.logger.Info("inputs loaded",
		zap.String("pair", params.Pair),
		zap.Int("klines", len(klines)),
		zap.Int("swaps", len(swaps)),
		zap.Duration("elapsed", time.Since(started)),
	)

	trades, err := AggregateTrades(pool, swaps, klines)
	if err != nil {
		return nil, err
	}

	r.logger.Info("trades aggregated",
		zap.Int("trades", len(trades)),
		zap.Duration("elapsed", time.Since(started)),
	)

	// The adaptive trigger path stays latent until an external signal
	// source is wired in; forced instructions are the only live trigger.
	result, err := simulate(pool, params, trades, false, r.logger)
	if err != nil {
		return nil, err
	}

	report, err := buildReport(pool, params, trades, result, startTs, endTs)
	if err != nil {
		return nil, err
	}

	r.logger.Info("run complete",
		zap.String("report", report.ReportName),
		zap.Int("events", len(report.TradeInfo)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return report, nil
}

// navSample is one NAV-index observation.
type navSample struct {
	ts int64
	im decimal.Decimal
}

// simResult carries everything the walk produced for report assembly.
type simResult struct {
	events  []model.TradeEvent
	samples []navSample

	startNetValue decimal.Decimal
	endNetValue   decimal.Decimal
	lastPrice     decimal.Decimal

	start0 *big.Int
	start1 *big.Int

	totalComm0 *big.Int
	totalComm1 *big.Int
	swapFee0   *big.Int
	swapFee1   *big.Int

	reUp   int
	reDown int
	reWin  int
}

// simulate walks the trade sequence in order, accruing commission while the
// price stays in range and executing remove/add rebalances when a trigger
// fires, then closes the position at the window end.
func simulate(pool *model.Pool, params model.Params, trades []model.Trade, signalPending bool, logger *zap.Logger) (*simResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	first := trades[0]
	boundary := univ3.FloorTick(params.BoundaryThreshold, pool.TickSpacing)

	ts := params.StartTs
	price := first.Price
	tick := first.Tick
	tickPrice := univ3.TickPrice(tick)

	middleTick := univ3.FloorTick(tick, pool.TickSpacing)
	lowerTick := middleTick - boundary
	upperTick := middleTick + boundary

	sqrtPrice := univ3.SqrtPriceX96FromTick(tick)
	sqrtLower := univ3.SqrtPriceX96FromTick(lowerTick)
	sqrtUpper := univ3.SqrtPriceX96FromTick(upperTick)

	startNetValue := netValue(pool, params.Amount0, params.Amount1, price)

	add, err := addLiquidity(pool, sqrtPrice, sqrtLower, sqrtUpper, tickPrice,
		decmath.ToRaw(params.Amount0, pool.Decimal0), decmath.ToRaw(params.Amount1, pool.Decimal1))
	if err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}

	liquidity := add.Liquidity
	amount0 := add.Amount0
	amount1 := add.Amount1
	change0 := add.Change0
	change1 := add.Change1

	start0 := new(big.Int).Add(amount0, change0)
	start1 := new(big.Int).Add(amount1, change1)

	swapFee0 := big.NewInt(0)
	swapFee1 := big.NewInt(0)
	if add.SwapToken == 0 {
		swapFee0.Add(swapFee0, add.SwapFee)
	} else {
		swapFee1.Add(swapFee1, add.SwapFee)
	}

	tempComm0 := big.NewInt(0)
	tempComm1 := big.NewInt(0)
	totalComm0 := big.NewInt(0)
	totalComm1 := big.NewInt(0)

	samples := []navSample{{ts: params.StartTs, im: decimal.NewFromInt(1)}}
	events := []model.TradeEvent{{
		Ts:         strconv.FormatInt(ts, 10),
		Price:      price.String(),
		Amount0:    decmath.ToHuman(amount0, pool.Decimal0).String(),
		Amount1:    decmath.ToHuman(amount1, pool.Decimal1).String(),
		Liquidity:  liquidity.String(),
		Carried0:   decmath.ToHuman(change0, pool.Decimal0).String(),
		Carried1:   decmath.ToHuman(change1, pool.Decimal1).String(),
		Return:     "0",
		Commission: "0",
		GasPrice:   initGasPrice,
		GasUsed:    initGasUsed,
		Action:     model.ActionAdd,
	}}

	instructions := make(map[int64]model.RebalanceInstruction, len(params.Rebalance))
	for _, ins := range params.Rebalance {
		instructions[ins.Block] = ins
	}

	lastRebalanceTs := first.Ts
	endNetValue := decimal.Zero
	var reUp, reDown, reWin int

	for _, trade := range trades {
		ts = trade.Ts
		price = trade.Price
		tick = trade.Tick
		tickPrice = univ3.TickPrice(tick)
		sqrtPrice = univ3.SqrtPriceX96FromTick(tick)

		ins, hasIns := instructions[trade.BlockNumber]

		if sqrtPrice.Cmp(sqrtLower) >= 0 && sqrtPrice.Cmp(sqrtUpper) <= 0 {
			ratio, err := decmath.SafeDiv(decimal.NewFromBigInt(liquidity, 0), trade.Liquidity)
			if err != nil {
				return nil, fmt.Errorf("liquidity share at block %d: %w", trade.BlockNumber, err)
			}
			fee0 := trade.Amount0.Mul(pool.SwapFee).Mul(ratio)
			tempComm0.Add(tempComm0, decmath.ToRaw(fee0, pool.Decimal0))
			fee1 := trade.Amount1.Mul(pool.SwapFee).Mul(ratio)
			tempComm1.Add(tempComm1, decmath.ToRaw(fee1, pool.Decimal1))
		}

		nav, err := netValueAndIndex(pool, sqrtPrice, sqrtLower, sqrtUpper, liquidity, price,
			start0, start1, change0, change1, tempComm0, tempComm1)
		if err != nil {
			return nil, fmt.Errorf("nav at block %d: %w", trade.BlockNumber, err)
		}
		endNetValue = nav.NetValue
		samples = append(samples, navSample{ts: ts, im: nav.Index})

		forced := hasIns && ins.Upper > ins.Lower
		if !signalPending && !forced {
			continue
		}

		distance := tick - middleTick
		if distance < 0 {
			distance = -distance
		}
		gasOK := decmath.ToGwei(trade.GasPrice.BigInt()).Cmp(gasPriceCutoffGwei) <= 0

		if (distance >= params.ReBalanceThreshold && gasOK) || forced {
			remove, err := removeLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity, tickPrice, amount0, amount1)
			if err != nil {
				return nil, fmt.Errorf("remove at block %d: %w", trade.BlockNumber, err)
			}

			cp, err := commissionRate(amount0, amount1, tempComm0, tempComm1, tickPrice)
			if err != nil {
				return nil, fmt.Errorf("commission rate at block %d: %w", trade.BlockNumber, err)
			}
			totalComm0.Add(totalComm0, tempComm0)
			totalComm1.Add(totalComm1, tempComm1)

			if remove.Return.Add(cp).Sign() > 0 {
				reWin++
			}

			events = append(events, model.TradeEvent{
				Ts:         strconv.FormatInt(ts, 10),
				Price:      price.String(),
				Amount0:    decmath.ToHuman(new(big.Int).Neg(remove.Amount0), pool.Decimal0).String(),
				Amount1:    decmath.ToHuman(new(big.Int).Neg(remove.Amount1), pool.Decimal1).String(),
				Liquidity:  new(big.Int).Neg(liquidity).String(),
				Carried0:   decmath.ToHuman(amount0, pool.Decimal0).String(),
				Carried1:   decmath.ToHuman(amount1, pool.Decimal1).String(),
				Return:     remove.Return.String(),
				Commission: cp.String(),
				GasPrice:   decmath.Plain(trade.GasPrice),
				GasUsed:    removeGasUsed,
				Action:     model.ActionRemove,
			})

			gasCost := trade.GasPrice.Mul(decimal.NewFromBigInt(avgRebalanceGasUsed, 0)).BigInt()
			logger.Info("rebalance",
				zap.Int64("window_start", lastRebalanceTs),
				zap.Int64("window_end", trade.Ts),
				zap.Int64("lower_tick", lowerTick),
				zap.Int64("upper_tick", upperTick),
				zap.String("liquidity", liquidity.String()),
				zap.String("removed0", remove.Amount0.String()),
				zap.String("removed1", remove.Amount1.String()),
				zap.String("fee0", tempComm0.String()),
				zap.String("fee1", tempComm1.String()),
				zap.String("commission_rate", cp.String()),
				zap.String("return", remove.Return.String()),
				zap.String("gas_fee_ether", decmath.ToEther(gasCost).String()),
			)

			if tick > middleTick {
				reUp++
			} else {
				reDown++
			}

			amount0 = new(big.Int).Add(remove.Amount0, change0)
			amount0.Add(amount0, tempComm0)
			amount1 = new(big.Int).Add(remove.Amount1, change1)
			amount1.Add(amount1, tempComm1)
			tempComm0 = big.NewInt(0)
			tempComm1 = big.NewInt(0)

			lastRebalanceTs = trade.Ts

			middleTick = univ3.FloorTick(tick, pool.TickSpacing)
			lowerTick = middleTick - boundary
			upperTick = middleTick + boundary
			if hasIns && ins.Lower < ins.Upper {
				lowerTick = ins.Lower
				upperTick = ins.Upper
			}

			sqrtLower = univ3.SqrtPriceX96FromTick(lowerTick)
			sqrtUpper = univ3.SqrtPriceX96FromTick(upperTick)

			add, err = addLiquidity(pool, sqrtPrice, sqrtLower, sqrtUpper, tickPrice, amount0, amount1)
			if err != nil {
				return nil, fmt.Errorf("re-add at block %d: %w", trade.BlockNumber, err)
			}
			liquidity = add.Liquidity
			amount0 = add.Amount0
			amount1 = add.Amount1
			change0 = add.Change0
			change1 = add.Change1
			if add.SwapToken == 0 {
				swapFee0.Add(swapFee0, add.SwapFee)
			} else {
				swapFee1.Add(swapFee1, add.SwapFee)
			}

			events = append(events, model.TradeEvent{
				Ts:         strconv.FormatInt(ts, 10),
				Price:      price.String(),
				Amount0:    decmath.ToHuman(amount0, pool.Decimal0).String(),
				Amount1:    decmath.ToHuman(amount1, pool.Decimal1).String(),
				Liquidity:  liquidity.String(),
				Carried0:   decmath.ToHuman(change0, pool.Decimal0).String(),
				Carried1:   decmath.ToHuman(change1, pool.Decimal1).String(),
				Return:     "0",
				Commission: "0",
				GasPrice:   decmath.Plain(trade.GasPrice),
				GasUsed:    avgRebalanceGasUsed.String(),
				Action:     model.ActionAdd,
			})
		}
		signalPending = false
	}

	// Close the position: one final remove leg, no re-add.
	cp, err := commissionRate(amount0, amount1, tempComm0, tempComm1, tickPrice)
	if err != nil {
		return nil, fmt.Errorf("closing commission rate: %w", err)
	}
	totalComm0.Add(totalComm0, tempComm0)
	totalComm1.Add(totalComm1, tempComm1)

	remove, err := removeLiquidity(sqrtPrice, sqrtLower, sqrtUpper, liquidity, tickPrice, amount0, amount1)
	if err != nil {
		return nil, fmt.Errorf("closing remove: %w", err)
	}
	amount0 = new(big.Int).Add(remove.Amount0, change0)
	amount0.Add(amount0, tempComm0)
	amount1 = new(big.Int).Add(remove.Amount1, change1)
	amount1.Add(amount1, tempComm1)

	events = append(events, model.TradeEvent{
		Ts:         strconv.FormatInt(ts, 10),
		Price:      price.String(),
		Amount0:    decmath.ToHuman(new(big.Int).Neg(remove.Amount0), pool.Decimal0).String(),
		Amount1:    decmath.ToHuman(new(big.Int).Neg(remove.Amount1), pool.Decimal1).String(),
		Liquidity:  new(big.Int).Neg(liquidity).String(),
		Carried0:   decmath.ToHuman(amount0, pool.Decimal0).String(),
		Carried1:   decmath.ToHuman(amount1, pool.Decimal1).String(),
		Return:     remove.Return.String(),
		Commission: cp.String(),
		GasPrice:   initGasPrice,
		GasUsed:    closeGasUsed,
		Action:     model.ActionRemove,
	})

	if remove.Return.Add(cp).Sign() > 0 {
		reWin++
	}

	return &simResult{
		events:        events,
		samples:       samples,
		startNetValue: startNetValue,
		endNetValue:   endNetValue,
		lastPrice:     price,
		start0:        start0,
		start1:        start1,
		totalComm0:    totalComm0,
		totalComm1:    totalComm1,
		swapFee0:      swapFee0,
		swapFee1:      swapFee1,
		reUp:          reUp,
		reDown:        reDown,
		reWin:         reWin,
	}, nil
}
