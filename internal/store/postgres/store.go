package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

// Store persists reconciled entities in Postgres.
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

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectPosition = `
	SELECT id, owner, pool, token0, token1, tick_lower, tick_upper,
		liquidity::text,
		deposited_token0::text, deposited_token1::text,
		withdrawn_token0::text, withdrawn_token1::text,
		collected_token0::text, collected_token1::text,
		fee_growth_inside0_last_x128::text, fee_growth_inside1_last_x128::text,
		transaction_id, last_block_number, last_log_index
	FROM positions WHERE id=$1`

func (s *Store) LoadPosition(ctx context.Context, id string) (*model.Position, bool, error) {
	var (
		p                               model.Position
		liquidity, dep0, dep1, wd0, wd1 string
		col0, col1, growth0, growth1    string
		lastBlock, lastLog              *int64
	)
	err := s.pool.QueryRow(ctx, selectPosition, id).Scan(
		&p.ID, &p.Owner, &p.Pool, &p.Token0, &p.Token1, &p.TickLower, &p.TickUpper,
		&liquidity, &dep0, &dep1, &wd0, &wd1, &col0, &col1, &growth0, &growth1,
		&p.Transaction, &lastBlock, &lastLog,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load position %s: %w", id, err)
	}
	p.LastApplied = cursorFromColumns(lastBlock, lastLog)
	var np numParser
	p.Liquidity = np.bigInt(liquidity)
	p.DepositedToken0 = np.dec(dep0)
	p.DepositedToken1 = np.dec(dep1)
	p.WithdrawnToken0 = np.dec(wd0)
	p.WithdrawnToken1 = np.dec(wd1)
	p.CollectedToken0 = np.dec(col0)
	p.CollectedToken1 = np.dec(col1)
	p.FeeGrowthInside0LastX128 = np.bigInt(growth0)
	p.FeeGrowthInside1LastX128 = np.bigInt(growth1)
	if np.err != nil {
		return nil, false, fmt.Errorf("load position %s: %w", id, np.err)
	}
	return &p, true, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p *model.Position) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("position id required")
	}
	lastBlock, lastLog := cursorColumns(p.LastApplied)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			id, owner, pool, token0, token1, tick_lower, tick_upper, liquidity,
			deposited_token0, deposited_token1, withdrawn_token0, withdrawn_token1,
			collected_token0, collected_token1, collected_fees_token0, collected_fees_token1,
			fee_growth_inside0_last_x128, fee_growth_inside1_last_x128, transaction_id,
			last_block_number, last_log_index, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,now())
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			pool = EXCLUDED.pool,
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			tick_lower = EXCLUDED.tick_lower,
			tick_upper = EXCLUDED.tick_upper,
			liquidity = EXCLUDED.liquidity,
			deposited_token0 = EXCLUDED.deposited_token0,
			deposited_token1 = EXCLUDED.deposited_token1,
			withdrawn_token0 = EXCLUDED.withdrawn_token0,
			withdrawn_token1 = EXCLUDED.withdrawn_token1,
			collected_token0 = EXCLUDED.collected_token0,
			collected_token1 = EXCLUDED.collected_token1,
			collected_fees_token0 = EXCLUDED.collected_fees_token0,
			collected_fees_token1 = EXCLUDED.collected_fees_token1,
			fee_growth_inside0_last_x128 = EXCLUDED.fee_growth_inside0_last_x128,
			fee_growth_inside1_last_x128 = EXCLUDED.fee_growth_inside1_last_x128,
			transaction_id = EXCLUDED.transaction_id,
			last_block_number = EXCLUDED.last_block_number,
			last_log_index = EXCLUDED.last_log_index,
			updated_at = now()
	`,
		p.ID, p.Owner, p.Pool, p.Token0, p.Token1, p.TickLower, p.TickUpper,
		intText(p.Liquidity),
		p.DepositedToken0.String(), p.DepositedToken1.String(),
		p.WithdrawnToken0.String(), p.WithdrawnToken1.String(),
		p.CollectedToken0.String(), p.CollectedToken1.String(),
		p.CollectedFeesToken0().String(), p.CollectedFeesToken1().String(),
		intText(p.FeeGrowthInside0LastX128), intText(p.FeeGrowthInside1LastX128),
		p.Transaction, lastBlock, lastLog,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) LoadPositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error) {
	var (
		snap                            model.PositionSnapshot
		blockNumber, timestamp          int64
		liquidity, dep0, dep1, wd0, wd1 string
		fees0, fees1, growth0, growth1  string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner, pool, position, block_number, timestamp,
			liquidity::text,
			deposited_token0::text, deposited_token1::text,
			withdrawn_token0::text, withdrawn_token1::text,
			collected_fees_token0::text, collected_fees_token1::text,
			transaction_id,
			fee_growth_inside0_last_x128::text, fee_growth_inside1_last_x128::text
		FROM position_snapshots WHERE id=$1`, id).Scan(
		&snap.ID, &snap.Owner, &snap.Pool, &snap.Position, &blockNumber, &timestamp,
		&liquidity, &dep0, &dep1, &wd0, &wd1, &fees0, &fees1,
		&snap.Transaction, &growth0, &growth1,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load position snapshot %s: %w", id, err)
	}
	snap.BlockNumber = uint64(blockNumber)
	snap.Timestamp = uint64(timestamp)
	var np numParser
	snap.Liquidity = np.bigInt(liquidity)
	snap.DepositedToken0 = np.dec(dep0)
	snap.DepositedToken1 = np.dec(dep1)
	snap.WithdrawnToken0 = np.dec(wd0)
	snap.WithdrawnToken1 = np.dec(wd1)
	snap.CollectedFeesToken0 = np.dec(fees0)
	snap.CollectedFeesToken1 = np.dec(fees1)
	snap.FeeGrowthInside0LastX128 = np.bigInt(growth0)
	snap.FeeGrowthInside1LastX128 = np.bigInt(growth1)
	if np.err != nil {
		return nil, false, fmt.Errorf("load position snapshot %s: %w", id, np.err)
	}
	return &snap, true, nil
}

func (s *Store) UpsertPositionSnapshot(ctx context.Context, snap *model.PositionSnapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("position snapshot id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO position_snapshots (
			id, owner, pool, position, block_number, timestamp, liquidity,
			deposited_token0, deposited_token1, withdrawn_token0, withdrawn_token1,
			collected_fees_token0, collected_fees_token1, transaction_id,
			fee_growth_inside0_last_x128, fee_growth_inside1_last_x128
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			pool = EXCLUDED.pool,
			position = EXCLUDED.position,
			block_number = EXCLUDED.block_number,
			timestamp = EXCLUDED.timestamp,
			liquidity = EXCLUDED.liquidity,
			deposited_token0 = EXCLUDED.deposited_token0,
			deposited_token1 = EXCLUDED.deposited_token1,
			withdrawn_token0 = EXCLUDED.withdrawn_token0,
			withdrawn_token1 = EXCLUDED.withdrawn_token1,
			collected_fees_token0 = EXCLUDED.collected_fees_token0,
			collected_fees_token1 = EXCLUDED.collected_fees_token1,
			transaction_id = EXCLUDED.transaction_id,
			fee_growth_inside0_last_x128 = EXCLUDED.fee_growth_inside0_last_x128,
			fee_growth_inside1_last_x128 = EXCLUDED.fee_growth_inside1_last_x128
	`,
		snap.ID, snap.Owner, snap.Pool, snap.Position,
		int64(snap.BlockNumber), int64(snap.Timestamp),
		intText(snap.Liquidity),
		snap.DepositedToken0.String(), snap.DepositedToken1.String(),
		snap.WithdrawnToken0.String(), snap.WithdrawnToken1.String(),
		snap.CollectedFeesToken0.String(), snap.CollectedFeesToken1.String(),
		snap.Transaction,
		intText(snap.FeeGrowthInside0LastX128), intText(snap.FeeGrowthInside1LastX128),
	)
	if err != nil {
		return fmt.Errorf("upsert position snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *Store) LoadToken(ctx context.Context, id string) (*model.Token, bool, error) {
	var (
		t                                    model.Token
		decimals                             int16
		txCount, poolCount                   int64
		supply, derived, volume, volumeUSD   string
		untracked, fees, tvl, tvlUSD, tvlUnt string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, name, decimals, total_supply::text,
			derived_eth::text, volume::text, volume_usd::text, untracked_volume_usd::text,
			fees_usd::text, total_value_locked::text, total_value_locked_usd::text,
			total_value_locked_usd_untracked::text, tx_count, pool_count, whitelist_pools
		FROM tokens WHERE id=$1`, id).Scan(
		&t.ID, &t.Symbol, &t.Name, &decimals, &supply,
		&derived, &volume, &volumeUSD, &untracked, &fees, &tvl, &tvlUSD, &tvlUnt,
		&txCount, &poolCount, &t.WhitelistPools,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load token %s: %w", id, err)
	}
	t.Decimals = uint8(decimals)
	t.TxCount = uint64(txCount)
	t.PoolCount = uint64(poolCount)
	var np numParser
	t.TotalSupply = np.bigInt(supply)
	t.DerivedETH = np.dec(derived)
	t.Volume = np.dec(volume)
	t.VolumeUSD = np.dec(volumeUSD)
	t.UntrackedVolumeUSD = np.dec(untracked)
	t.FeesUSD = np.dec(fees)
	t.TotalValueLocked = np.dec(tvl)
	t.TotalValueLockedUSD = np.dec(tvlUSD)
	t.TotalValueLockedUSDUntracked = np.dec(tvlUnt)
	if np.err != nil {
		return nil, false, fmt.Errorf("load token %s: %w", id, np.err)
	}
	return &t, true, nil
}

func (s *Store) UpsertToken(ctx context.Context, t *model.Token) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("token id required")
	}
	whitelist := t.WhitelistPools
	if whitelist == nil {
		whitelist = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, symbol, name, decimals, total_supply, derived_eth, volume, volume_usd,
			untracked_volume_usd, fees_usd, total_value_locked, total_value_locked_usd,
			total_value_locked_usd_untracked, tx_count, pool_count, whitelist_pools
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			total_supply = EXCLUDED.total_supply,
			derived_eth = EXCLUDED.derived_eth,
			volume = EXCLUDED.volume,
			volume_usd = EXCLUDED.volume_usd,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			fees_usd = EXCLUDED.fees_usd,
			total_value_locked = EXCLUDED.total_value_locked,
			total_value_locked_usd = EXCLUDED.total_value_locked_usd,
			total_value_locked_usd_untracked = EXCLUDED.total_value_locked_usd_untracked,
			tx_count = EXCLUDED.tx_count,
			pool_count = EXCLUDED.pool_count,
			whitelist_pools = EXCLUDED.whitelist_pools
	`,
		t.ID, t.Symbol, t.Name, int16(t.Decimals), intText(t.TotalSupply),
		t.DerivedETH.String(), t.Volume.String(), t.VolumeUSD.String(),
		t.UntrackedVolumeUSD.String(), t.FeesUSD.String(), t.TotalValueLocked.String(),
		t.TotalValueLockedUSD.String(), t.TotalValueLockedUSDUntracked.String(),
		int64(t.TxCount), int64(t.PoolCount), whitelist,
	)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) LoadPool(ctx context.Context, id string) (*model.Pool, bool, error) {
	var (
		p                                                      model.Pool
		feeTier, observation, createdTS, createdBlock          int64
		lpCount, txCount                                       int64
		liquidity, sqrtPrice, growth0, growth1, price0, price1 string
		tvl0, tvl1, tvlUSD, tvlETH, tvlUnt                     string
		vol0, vol1, volUSD, feesUSD, untracked                 string
		col0, col1, colUSD                                     string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, token0, token1, fee_tier, liquidity::text, sqrt_price::text,
			fee_growth_global0_x128::text, fee_growth_global1_x128::text, observation_index,
			token0_price::text, token1_price::text, created_at_timestamp, created_at_block_number,
			liquidity_provider_count, tx_count,
			total_value_locked_token0::text, total_value_locked_token1::text,
			total_value_locked_usd::text, total_value_locked_eth::text,
			total_value_locked_usd_untracked::text,
			volume_token0::text, volume_token1::text, volume_usd::text, fees_usd::text,
			untracked_volume_usd::text,
			collected_fees_token0::text, collected_fees_token1::text, collected_fees_usd::text
		FROM pools WHERE id=$1`, id).Scan(
		&p.ID, &p.Token0, &p.Token1, &feeTier, &liquidity, &sqrtPrice,
		&growth0, &growth1, &observation,
		&price0, &price1, &createdTS, &createdBlock,
		&lpCount, &txCount,
		&tvl0, &tvl1, &tvlUSD, &tvlETH, &tvlUnt,
		&vol0, &vol1, &volUSD, &feesUSD, &untracked,
		&col0, &col1, &colUSD,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load pool %s: %w", id, err)
	}
	p.FeeTier = uint32(feeTier)
	p.ObservationIndex = uint64(observation)
	p.CreatedAtTimestamp = uint64(createdTS)
	p.CreatedAtBlockNumber = uint64(createdBlock)
	p.LiquidityProviderCount = uint64(lpCount)
	p.TxCount = uint64(txCount)
	var np numParser
	p.Liquidity = np.bigInt(liquidity)
	p.SqrtPrice = np.bigInt(sqrtPrice)
	p.FeeGrowthGlobal0X128 = np.bigInt(growth0)
	p.FeeGrowthGlobal1X128 = np.bigInt(growth1)
	p.Token0Price = np.dec(price0)
	p.Token1Price = np.dec(price1)
	p.TotalValueLockedToken0 = np.dec(tvl0)
	p.TotalValueLockedToken1 = np.dec(tvl1)
	p.TotalValueLockedUSD = np.dec(tvlUSD)
	p.TotalValueLockedETH = np.dec(tvlETH)
	p.TotalValueLockedUSDUntracked = np.dec(tvlUnt)
	p.VolumeToken0 = np.dec(vol0)
	p.VolumeToken1 = np.dec(vol1)
	p.VolumeUSD = np.dec(volUSD)
	p.FeesUSD = np.dec(feesUSD)
	p.UntrackedVolumeUSD = np.dec(untracked)
	p.CollectedFeesToken0 = np.dec(col0)
	p.CollectedFeesToken1 = np.dec(col1)
	p.CollectedFeesUSD = np.dec(colUSD)
	if np.err != nil {
		return nil, false, fmt.Errorf("load pool %s: %w", id, np.err)
	}
	return &p, true, nil
}

func (s *Store) UpsertPool(ctx context.Context, p *model.Pool) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("pool id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, token0, token1, fee_tier, liquidity, sqrt_price,
			fee_growth_global0_x128, fee_growth_global1_x128, observation_index,
			token0_price, token1_price, created_at_timestamp, created_at_block_number,
			liquidity_provider_count, tx_count,
			total_value_locked_token0, total_value_locked_token1, total_value_locked_usd,
			total_value_locked_eth, total_value_locked_usd_untracked,
			volume_token0, volume_token1, volume_usd, fees_usd, untracked_volume_usd,
			collected_fees_token0, collected_fees_token1, collected_fees_usd
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		ON CONFLICT (id) DO UPDATE SET
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			fee_tier = EXCLUDED.fee_tier,
			liquidity = EXCLUDED.liquidity,
			sqrt_price = EXCLUDED.sqrt_price,
			fee_growth_global0_x128 = EXCLUDED.fee_growth_global0_x128,
			fee_growth_global1_x128 = EXCLUDED.fee_growth_global1_x128,
			observation_index = EXCLUDED.observation_index,
			token0_price = EXCLUDED.token0_price,
			token1_price = EXCLUDED.token1_price,
			created_at_timestamp = EXCLUDED.created_at_timestamp,
			created_at_block_number = EXCLUDED.created_at_block_number,
			liquidity_provider_count = EXCLUDED.liquidity_provider_count,
			tx_count = EXCLUDED.tx_count,
			total_value_locked_token0 = EXCLUDED.total_value_locked_token0,
			total_value_locked_token1 = EXCLUDED.total_value_locked_token1,
			total_value_locked_usd = EXCLUDED.total_value_locked_usd,
			total_value_locked_eth = EXCLUDED.total_value_locked_eth,
			total_value_locked_usd_untracked = EXCLUDED.total_value_locked_usd_untracked,
			volume_token0 = EXCLUDED.volume_token0,
			volume_token1 = EXCLUDED.volume_token1,
			volume_usd = EXCLUDED.volume_usd,
			fees_usd = EXCLUDED.fees_usd,
			untracked_volume_usd = EXCLUDED.untracked_volume_usd,
			collected_fees_token0 = EXCLUDED.collected_fees_token0,
			collected_fees_token1 = EXCLUDED.collected_fees_token1,
			collected_fees_usd = EXCLUDED.collected_fees_usd
	`,
		p.ID, p.Token0, p.Token1, int64(p.FeeTier), intText(p.Liquidity), intText(p.SqrtPrice),
		intText(p.FeeGrowthGlobal0X128), intText(p.FeeGrowthGlobal1X128), int64(p.ObservationIndex),
		p.Token0Price.String(), p.Token1Price.String(),
		int64(p.CreatedAtTimestamp), int64(p.CreatedAtBlockNumber),
		int64(p.LiquidityProviderCount), int64(p.TxCount),
		p.TotalValueLockedToken0.String(), p.TotalValueLockedToken1.String(),
		p.TotalValueLockedUSD.String(), p.TotalValueLockedETH.String(),
		p.TotalValueLockedUSDUntracked.String(),
		p.VolumeToken0.String(), p.VolumeToken1.String(), p.VolumeUSD.String(),
		p.FeesUSD.String(), p.UntrackedVolumeUSD.String(),
		p.CollectedFeesToken0.String(), p.CollectedFeesToken1.String(), p.CollectedFeesUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert pool %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*model.Transaction, bool, error) {
	var (
		tx                     model.Transaction
		blockNumber, timestamp int64
	)
	err := s.pool.QueryRow(ctx, `SELECT id, block_number, timestamp FROM transactions WHERE id=$1`, id).
		Scan(&tx.ID, &blockNumber, &timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load transaction %s: %w", id, err)
	}
	tx.BlockNumber = uint64(blockNumber)
	tx.Timestamp = uint64(timestamp)
	return &tx, true, nil
}

func (s *Store) UpsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("transaction id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, block_number, timestamp)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET block_number = EXCLUDED.block_number, timestamp = EXCLUDED.timestamp
	`, tx.ID, int64(tx.BlockNumber), int64(tx.Timestamp))
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// LoadState returns the reconcile cursor saved under name.
func (s *Store) LoadState(ctx context.Context, name string) (model.Cursor, bool, error) {
	if name == "" {
		return model.Cursor{}, false, fmt.Errorf("state name required")
	}
	var block, logIndex int64
	row := s.pool.QueryRow(ctx, `SELECT last_block_number, last_log_index FROM reconcile_state WHERE name=$1`, name)
	if err := row.Scan(&block, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Cursor{}, false, nil
		}
		return model.Cursor{}, false, err
	}
	return model.Cursor{BlockNumber: uint64(block), LogIndex: uint64(logIndex)}, true, nil
}

// SaveState upserts the reconcile cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, cursor model.Cursor) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconcile_state (name, last_block_number, last_log_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block_number = EXCLUDED.last_block_number,
			last_log_index = EXCLUDED.last_log_index,
			updated_at = now()
	`, name, int64(cursor.BlockNumber), int64(cursor.LogIndex))
	return err
}

func intText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// numParser parses numeric text columns and keeps the first error.
type numParser struct {
	err error
}

func (p *numParser) bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		if p.err == nil {
			p.err = fmt.Errorf("invalid integer %q", s)
		}
		return new(big.Int)
	}
	return v
}

func (p *numParser) dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		return decimal.Zero
	}
	return v
}

// cursorColumns maps an applied cursor to the nullable column pair.
func cursorColumns(c *model.Cursor) (*int64, *int64) {
	if c == nil {
		return nil, nil
	}
	block, index := int64(c.BlockNumber), int64(c.LogIndex)
	return &block, &index
}

func cursorFromColumns(block, index *int64) *model.Cursor {
	if block == nil || index == nil {
		return nil
	}
	return &model.Cursor{BlockNumber: uint64(*block), LogIndex: uint64(*index)}
}
