package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"positionScope/internal/model"
	"positionScope/internal/pricing"
	"positionScope/internal/store"
)

// getOrCreatePosition loads a position or builds it from positions(tokenId)
// at the event block. A new position is not persisted here. ok is false when
// the position cannot be read.
func (e *Engine) getOrCreatePosition(ctx context.Context, ec model.EventContext, tokenID *big.Int) (*model.Position, bool, error) {
	id := tokenID.String()
	pos, found, err := e.repo.LoadPosition(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("load position %s: %w", id, err)
	}
	if found {
		return pos, true, nil
	}

	state, ok := e.reader.PositionState(ctx, blockContext(ec), tokenID).Get()
	if !ok {
		e.logger.Debug("position state unavailable",
			zap.String("position_id", id),
			zap.Uint64("block_number", ec.BlockNumber),
			zap.String("tx_hash", ec.TxHash),
		)
		return nil, false, nil
	}

	token0 := strings.ToLower(state.Token0)
	token1 := strings.ToLower(state.Token1)
	pool := strings.ToLower(e.registry.PoolAddress(token0, token1, state.Fee))
	return &model.Position{
		ID:                       id,
		Pool:                     pool,
		Token0:                   token0,
		Token1:                   token1,
		TickLower:                tickID(pool, state.TickLower),
		TickUpper:                tickID(pool, state.TickUpper),
		Liquidity:                new(big.Int),
		FeeGrowthInside0LastX128: intOrZero(state.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: intOrZero(state.FeeGrowthInside1LastX128),
		Transaction:              ec.TxHash,
	}, true, nil
}

// resolveTokens gets or creates both tokens of a pair and stores them. Nothing
// is written unless both resolve.
func (e *Engine) resolveTokens(ctx context.Context, addr0, addr1 string) (*model.Token, *model.Token, bool, error) {
	ids := []string{addr0, addr1}
	sort.Strings(ids)
	unlock0 := e.locks.Lock(store.KindToken, ids[0])
	defer unlock0()
	if ids[1] != ids[0] {
		unlock1 := e.locks.Lock(store.KindToken, ids[1])
		defer unlock1()
	}

	token0, ok, err := e.getOrCreateToken(ctx, addr0)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	token1, ok, err := e.getOrCreateToken(ctx, addr1)
	if err != nil || !ok {
		return nil, nil, false, err
	}

	if err := e.repo.UpsertToken(ctx, token0); err != nil {
		return nil, nil, false, fmt.Errorf("upsert token %s: %w", token0.ID, err)
	}
	if err := e.repo.UpsertToken(ctx, token1); err != nil {
		return nil, nil, false, fmt.Errorf("upsert token %s: %w", token1.ID, err)
	}
	return token0, token1, true, nil
}

// getOrCreateToken loads a token or builds it from ERC20 metadata. A token
// without readable decimals is not created.
func (e *Engine) getOrCreateToken(ctx context.Context, address string) (*model.Token, bool, error) {
	token, found, err := e.repo.LoadToken(ctx, address)
	if err != nil {
		return nil, false, fmt.Errorf("load token %s: %w", address, err)
	}
	if found {
		return token, true, nil
	}

	meta := e.reader.TokenMetadata(ctx, address)
	decimals, ok := meta.Decimals.Get()
	if !ok {
		e.logger.Warn("token decimals unknown", zap.String("token", address))
		return nil, false, nil
	}
	return &model.Token{
		ID:             address,
		Symbol:         meta.Symbol,
		Name:           meta.Name,
		Decimals:       decimals,
		TotalSupply:    intOrZero(meta.TotalSupply),
		WhitelistPools: []string{},
	}, true, nil
}

// ensurePool creates the pool from its live state the first time it is seen
// and registers it with the tracker. ok is false when the pool does not exist
// and its state cannot be read.
func (e *Engine) ensurePool(ctx context.Context, ec model.EventContext, address string, token0, token1 *model.Token) (bool, error) {
	unlock := e.locks.Lock(store.KindPool, address)
	defer unlock()

	_, found, err := e.repo.LoadPool(ctx, address)
	if err != nil {
		return false, fmt.Errorf("load pool %s: %w", address, err)
	}
	if found {
		return true, nil
	}

	state, ok := e.reader.PoolState(ctx, blockContext(ec), address).Get()
	if !ok {
		e.logger.Warn("pool state unavailable",
			zap.String("pool", address),
			zap.Uint64("block_number", ec.BlockNumber),
		)
		return false, nil
	}

	// Prices are derived from the live read but only structural fields are
	// seeded; price and volume aggregates start at zero.
	token0Price, token1Price := pricing.PricesFromSqrtPriceX96(state.SqrtPriceX96, token0.Decimals, token1.Decimals)
	e.logger.Debug("seeding pool",
		zap.String("pool", address),
		zap.Uint32("fee_tier", state.Fee),
		zap.String("token0_price", token0Price.String()),
		zap.String("token1_price", token1Price.String()),
	)

	pool := &model.Pool{
		ID:                   address,
		Token0:               token0.ID,
		Token1:               token1.ID,
		FeeTier:              state.Fee,
		Liquidity:            intOrZero(state.Liquidity),
		SqrtPrice:            intOrZero(state.SqrtPriceX96),
		FeeGrowthGlobal0X128: intOrZero(state.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: intOrZero(state.FeeGrowthGlobal1X128),
		ObservationIndex:     uint64(state.ObservationIndex),
	}
	if err := e.repo.UpsertPool(ctx, pool); err != nil {
		return false, fmt.Errorf("upsert pool %s: %w", address, err)
	}
	if err := e.tracker.Track(ctx, address, ec.BlockNumber); err != nil {
		e.logger.Warn("track pool", zap.String("pool", address), zap.Error(err))
	}
	return true, nil
}

func tickID(pool string, tick int32) string {
	return pool + "#" + strconv.FormatInt(int64(tick), 10)
}

func intOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
