package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangesim/internal/model"
)

// Store provides Postgres persistence for pools, hourly klines and raw
// swap events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetPool returns the pool metadata for a pair, or nil when unknown.
func (s *Store) GetPool(ctx context.Context, pair string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pair, token0, token1, decimal0, decimal1, reverse, tick_spacing, swap_fee
		FROM pools WHERE pair=$1
	`, pair)

	var p model.Pool
	err := row.Scan(&p.Pair, &p.Token0, &p.Token1, &p.Decimal0, &p.Decimal1, &p.Reverse, &p.TickSpacing, &p.SwapFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// LatestKlineTs returns the newest hourly kline timestamp for a pair.
func (s *Store) LatestKlineTs(ctx context.Context, pair string) (int64, bool, error) {
	var ts *int64
	row := s.pool.QueryRow(ctx, `SELECT max(ts) FROM hour_klines WHERE pair=$1`, pair)
	if err := row.Scan(&ts); err != nil {
		return 0, false, err
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

// KlinesUpTo returns the hourly klines with ts <= endTs, ordered by ts.
func (s *Store) KlinesUpTo(ctx context.Context, pair string, endTs int64) ([]model.HourKline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pair, ts, liquidity FROM hour_klines
		WHERE pair=$1 AND ts<=$2 ORDER BY ts
	`, pair, endTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var klines []model.HourKline
	for rows.Next() {
		var k model.HourKline
		if err := rows.Scan(&k.Pair, &k.Ts, &k.Liquidity); err != nil {
			return nil, err
		}
		klines = append(klines, k)
	}
	return klines, rows.Err()
}

// SwapsBetween returns the swap events with startTs <= ts <= endTs, ordered
// by block then timestamp.
func (s *Store) SwapsBetween(ctx context.Context, pair string, startTs, endTs int64) ([]model.SwapEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pair, ts, amount0, amount1, tick, block_number, gas_price
		FROM swap_records
		WHERE pair=$1 AND ts>=$2 AND ts<=$3
		ORDER BY block_number, ts
	`, pair, startTs, endTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []model.SwapEvent
	for rows.Next() {
		var sw model.SwapEvent
		if err := rows.Scan(&sw.Pair, &sw.Ts, &sw.Amount0, &sw.Amount1, &sw.Tick, &sw.BlockNumber, &sw.GasPrice); err != nil {
			return nil, err
		}
		swaps = append(swaps, sw)
	}
	return swaps, rows.Err()
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pair, token0, token1, decimal0, decimal1, reverse, tick_spacing, swap_fee, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			ON CONFLICT (pair)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				decimal0 = EXCLUDED.decimal0,
				decimal1 = EXCLUDED.decimal1,
				reverse = EXCLUDED.reverse,
				tick_spacing = EXCLUDED.tick_spacing,
				swap_fee = EXCLUDED.swap_fee,
				updated_at = now()
		`,
			p.Pair,
			p.Token0,
			p.Token1,
			p.Decimal0,
			p.Decimal1,
			p.Reverse,
			p.TickSpacing,
			p.SwapFee,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertKlines inserts or updates hourly liquidity klines.
func (s *Store) UpsertKlines(ctx context.Context, klines []model.HourKline) error {
	if len(klines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, k := range klines {
		batch.Queue(`
			INSERT INTO hour_klines (pair, ts, liquidity, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (pair, ts)
			DO UPDATE SET liquidity = EXCLUDED.liquidity, updated_at = now()
		`, k.Pair, k.Ts, k.Liquidity)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range klines {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertSwaps inserts raw swap events; replays of the same block range
// overwrite in place.
func (s *Store) InsertSwaps(ctx context.Context, swaps []model.SwapEvent) error {
	if len(swaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sw := range swaps {
		batch.Queue(`
			INSERT INTO swap_records (pair, ts, amount0, amount1, tick, block_number, gas_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (pair, block_number, ts)
			DO UPDATE SET
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				tick = EXCLUDED.tick,
				gas_price = EXCLUDED.gas_price
		`, sw.Pair, sw.Ts, sw.Amount0, sw.Amount1, sw.Tick, sw.BlockNumber, sw.GasPrice)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range swaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last processed block for an ingest name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM ingest_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveState upserts the last processed block for an ingest name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, block)
	return err
}
