// Package postgres persists simulation output to Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clamm/internal/model"
)

// Store provides Postgres persistence for simulation output.
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

// PutResults appends operation results.
func (s *Store) PutResults(ctx context.Context, results []model.ResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO sim_results (
				seq, op, pool_address, actor, amount0, amount1,
				sqrt_price_x96, tick, liquidity, price, error, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(r.Seq),
			r.Op,
			r.Pool,
			r.Actor,
			r.Amount0,
			r.Amount1,
			r.SqrtPriceX96,
			r.Tick,
			r.Liquidity,
			r.Price,
			r.Error,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range results {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshots inserts or updates pool snapshots.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				seq, pool_address, token0, token1, fee, tick_spacing,
				sqrt_price_x96, tick, liquidity,
				fee_growth_global0_x128, fee_growth_global1_x128, price,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (seq, pool_address)
			DO UPDATE SET
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				fee_growth_global0_x128 = EXCLUDED.fee_growth_global0_x128,
				fee_growth_global1_x128 = EXCLUDED.fee_growth_global1_x128,
				price = EXCLUDED.price,
				updated_at = now()
		`,
			int64(snap.Seq),
			snap.Pool,
			snap.Token0,
			snap.Token1,
			snap.Fee,
			snap.TickSpacing,
			snap.SqrtPriceX96,
			snap.Tick,
			snap.Liquidity,
			snap.FeeGrowthGlobal0X128,
			snap.FeeGrowthGlobal1X128,
			snap.Price,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutMetrics inserts or updates per-pool swap aggregates.
func (s *Store) PutMetrics(ctx context.Context, metrics []model.SwapMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO swap_metrics (
				pool_address, swap_count, volume0, volume1, fees0, fees1,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fees0 = EXCLUDED.fees0,
				fees1 = EXCLUDED.fees1,
				updated_at = now()
		`,
			m.Pool,
			int64(m.Swaps),
			m.Volume0,
			m.Volume1,
			m.Fees0,
			m.Fees1,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
