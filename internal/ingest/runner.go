package ingest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangesim/internal/chain"
	"rangesim/internal/decmath"
	"rangesim/internal/model"
)

// RunConfig holds runtime settings for one ingest run.
type RunConfig struct {
	PoolAddress  common.Address
	Pair         string
	Reverse      int
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Sink receives the rows an ingest run produces.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	InsertSwaps(ctx context.Context, swaps []model.SwapEvent) error
	UpsertKlines(ctx context.Context, klines []model.HourKline) error
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// Runner streams Swap logs for one pool and writes swap rows plus the
// derived hourly liquidity klines.
type Runner struct {
	cfg     RunConfig
	chain   *chain.Client
	sink    Sink
	decoder *Decoder
	logger  *zap.Logger
}

func NewRunner(cfg RunConfig, chainClient *chain.Client, sink Sink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		chain:   chainClient,
		sink:    sink,
		decoder: decoder,
		logger:  logger,
	}, nil
}

// Run executes the ingest loop: register the pool, resume from the saved
// watermark and walk the block ranges.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	pool, err := FetchPool(ctx, r.chain, r.cfg.PoolAddress, r.cfg.Pair, r.cfg.Reverse, r.logger)
	if err != nil {
		return fmt.Errorf("fetch pool: %w", err)
	}
	if err := r.sink.UpsertPools(ctx, []model.Pool{*pool}); err != nil {
		return fmt.Errorf("register pool: %w", err)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	stateName := fmt.Sprintf("swaps:%s", pool.Pair)
	watermark, ok, err := r.sink.LoadState(ctx, stateName)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if ok && watermark >= from {
		from = watermark + 1
		r.logger.Info("resume from watermark",
			zap.String("pair", pool.Pair),
			zap.Uint64("last_processed", watermark),
			zap.Uint64("from", from),
		)
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	r.logger.Info("ingest start",
		zap.String("chain_id", chainID.String()),
		zap.String("pair", pool.Pair),
		zap.Uint64("from", from),
		zap.Uint64("to", to),
	)

	ranges, err := splitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, br := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := r.filterLogsWithRetry(ctx, br.From, br.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		swaps, klines, err := r.buildRows(ctx, pool, logs)
		if err != nil {
			return err
		}

		if err := r.sink.InsertSwaps(ctx, swaps); err != nil {
			return fmt.Errorf("store swaps: %w", err)
		}
		if err := r.sink.UpsertKlines(ctx, klines); err != nil {
			return fmt.Errorf("store klines: %w", err)
		}
		if err := r.sink.SaveState(ctx, stateName, br.To); err != nil {
			return fmt.Errorf("save state: %w", err)
		}

		r.logger.Info("batch complete",
			zap.Uint64("from", br.From),
			zap.Uint64("to", br.To),
			zap.Int("swaps", len(swaps)),
			zap.Int("klines", len(klines)),
		)
	}

	return nil
}

// buildRows decodes a batch of logs into human-unit swap rows and derives
// one kline per hour from the last observed in-range liquidity.
func (r *Runner) buildRows(ctx context.Context, pool *model.Pool, logs []types.Log) ([]model.SwapEvent, []model.HourKline, error) {
	swaps := make([]model.SwapEvent, 0, len(logs))
	hourLiquidity := make(map[int64]decimal.Decimal)

	for _, log := range logs {
		if !r.decoder.CanDecode(log) {
			continue
		}
		data, err := r.decoder.DecodeSwap(log)
		if err != nil {
			return nil, nil, fmt.Errorf("decode swap %s: %w", log.TxHash.Hex(), err)
		}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}

		gasPrice, err := r.gasPriceWithRetry(ctx, log.TxHash)
		if err != nil {
			return nil, nil, fmt.Errorf("gas price %s: %w", log.TxHash.Hex(), err)
		}

		swaps = append(swaps, model.SwapEvent{
			Pair:        pool.Pair,
			Ts:          int64(ts),
			Amount0:     decmath.ToHuman(data.Amount0, pool.Decimal0),
			Amount1:     decmath.ToHuman(data.Amount1, pool.Decimal1),
			Tick:        int64(data.Tick),
			BlockNumber: int64(log.BlockNumber),
			GasPrice:    decimal.NewFromBigInt(gasPrice, 0),
		})

		hour := decmath.AlignHour(int64(ts))
		hourLiquidity[hour] = decimal.NewFromBigInt(data.Liquidity, 0)
	}

	klines := make([]model.HourKline, 0, len(hourLiquidity))
	for hour, liquidity := range hourLiquidity {
		klines = append(klines, model.HourKline{Pair: pool.Pair, Ts: hour, Liquidity: liquidity})
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].Ts < klines[j].Ts })

	return swaps, klines, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock,
			[]common.Address{r.cfg.PoolAddress}, []common.Hash{r.decoder.SwapTopic()})
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) gasPriceWithRetry(ctx context.Context, hash common.Hash) (*big.Int, error) {
	var gasPrice *big.Int
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		tx, pending, err := r.chain.TransactionByHash(ctx, hash)
		if err != nil {
			r.logger.Warn("transaction fetch failed", zap.Error(err), zap.String("tx", hash.Hex()))
			return err
		}
		if pending {
			return fmt.Errorf("transaction %s still pending", hash.Hex())
		}
		gasPrice = tx.GasPrice()
		return nil
	})
	return gasPrice, err
}
