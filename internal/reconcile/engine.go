package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/chainstate"
	"positionScope/internal/model"
	"positionScope/internal/pricing"
	"positionScope/internal/store"
)

// DefaultExcludedPool is a pool whose state breaks position accounting.
const DefaultExcludedPool = "0x8fe8d9bb8eeba3ed688069c3d6b556c9ca258248"

// Config controls engine policy.
type Config struct {
	// ExcludedPools are pool addresses whose positions are never materialized.
	ExcludedPools []string
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{ExcludedPools: []string{DefaultExcludedPool}}
}

// Engine applies position-manager events to the entity graph.
type Engine struct {
	repo     store.Repository
	reader   chainstate.StateReader
	registry chainstate.PoolRegistry
	tracker  PoolTracker
	locks    *store.KeyedMutex
	excluded map[string]struct{}
	logger   *zap.Logger
}

// NewEngine wires an Engine. tracker and logger may be nil.
func NewEngine(cfg Config, repo store.Repository, reader chainstate.StateReader, registry chainstate.PoolRegistry, tracker PoolTracker, logger *zap.Logger) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("state reader is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("pool registry is required")
	}
	if tracker == nil {
		tracker = nopTracker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedPools))
	for _, addr := range cfg.ExcludedPools {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			excluded[addr] = struct{}{}
		}
	}
	return &Engine{
		repo:     repo,
		reader:   reader,
		registry: registry,
		tracker:  tracker,
		locks:    store.NewKeyedMutex(),
		excluded: excluded,
		logger:   logger,
	}, nil
}

// Apply decodes a typed event record and routes it to its handler.
func (e *Engine) Apply(ctx context.Context, rec model.TypedEventRecord) (Outcome, error) {
	ec := rec.Context()
	var parseErr error
	switch rec.EventName {
	case model.EventIncreaseLiquidity:
		ev, err := parseLiquidityChange(rec.Decoded)
		if err == nil {
			return e.HandleIncreaseLiquidity(ctx, ec, ev)
		}
		parseErr = err
	case model.EventDecreaseLiquidity:
		ev, err := parseLiquidityChange(rec.Decoded)
		if err == nil {
			return e.HandleDecreaseLiquidity(ctx, ec, ev)
		}
		parseErr = err
	case model.EventCollect:
		ev, err := parseCollection(rec.Decoded)
		if err == nil {
			return e.HandleCollect(ctx, ec, ev)
		}
		parseErr = err
	case model.EventTransfer:
		ev, err := parseOwnershipTransfer(rec.Decoded)
		if err == nil {
			return e.HandleTransfer(ctx, ec, ev)
		}
		parseErr = err
	default:
		parseErr = fmt.Errorf("unsupported event %q", rec.EventName)
	}
	e.logger.Warn("skip invalid event",
		zap.String("tx_hash", rec.TxHash),
		zap.Uint64("log_index", rec.LogIndex),
		zap.String("event", rec.EventName),
		zap.Error(parseErr),
	)
	return OutcomeInvalidEvent, nil
}

// HandleIncreaseLiquidity adds liquidity and deposited amounts.
func (e *Engine) HandleIncreaseLiquidity(ctx context.Context, ec model.EventContext, ev LiquidityChange) (Outcome, error) {
	return e.applyAmounts(ctx, ec, ev.TokenID, ev.Amount0, ev.Amount1, func(pos *model.Position, amount0, amount1 decimal.Decimal) {
		pos.Liquidity = new(big.Int).Add(intOrZero(pos.Liquidity), intOrZero(ev.Liquidity))
		pos.DepositedToken0 = pos.DepositedToken0.Add(amount0)
		pos.DepositedToken1 = pos.DepositedToken1.Add(amount1)
	})
}

// HandleDecreaseLiquidity removes liquidity and adds withdrawn amounts.
func (e *Engine) HandleDecreaseLiquidity(ctx context.Context, ec model.EventContext, ev LiquidityChange) (Outcome, error) {
	return e.applyAmounts(ctx, ec, ev.TokenID, ev.Amount0, ev.Amount1, func(pos *model.Position, amount0, amount1 decimal.Decimal) {
		pos.Liquidity = new(big.Int).Sub(intOrZero(pos.Liquidity), intOrZero(ev.Liquidity))
		pos.WithdrawnToken0 = pos.WithdrawnToken0.Add(amount0)
		pos.WithdrawnToken1 = pos.WithdrawnToken1.Add(amount1)
	})
}

// HandleCollect adds collected amounts. Collected fees are derived from the
// collected and withdrawn totals when the position is written.
func (e *Engine) HandleCollect(ctx context.Context, ec model.EventContext, ev Collection) (Outcome, error) {
	return e.applyAmounts(ctx, ec, ev.TokenID, ev.Amount0, ev.Amount1, func(pos *model.Position, amount0, amount1 decimal.Decimal) {
		pos.CollectedToken0 = pos.CollectedToken0.Add(amount0)
		pos.CollectedToken1 = pos.CollectedToken1.Add(amount1)
	})
}

// HandleTransfer records the new owner. Tokens, pool and fee growth are not touched.
func (e *Engine) HandleTransfer(ctx context.Context, ec model.EventContext, ev OwnershipTransfer) (Outcome, error) {
	if ev.TokenID == nil {
		return OutcomeInvalidEvent, nil
	}
	unlock := e.locks.Lock(store.KindPosition, ev.TokenID.String())
	defer unlock()

	pos, ok, err := e.getOrCreatePosition(ctx, ec, ev.TokenID)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeMissingPosition, nil
	}
	if pos.AppliedThrough(ec.Cursor()) {
		e.logger.Debug("skip applied event",
			zap.String("position_id", pos.ID),
			zap.Uint64("block_number", ec.BlockNumber),
			zap.Uint64("log_index", ec.LogIndex),
		)
		return OutcomeAlreadyApplied, nil
	}
	if e.isExcluded(pos.Pool) {
		e.logger.Debug("skip excluded pool", zap.String("position_id", pos.ID), zap.String("pool", pos.Pool))
		return OutcomeExcludedPool, nil
	}

	owner := ev.To
	pos.Owner = &owner
	if err := e.commit(ctx, ec, pos); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

type amountMutation func(pos *model.Position, amount0, amount1 decimal.Decimal)

// applyAmounts runs the shared skeleton of the three amount-carrying events.
func (e *Engine) applyAmounts(ctx context.Context, ec model.EventContext, tokenID, raw0, raw1 *big.Int, mutate amountMutation) (Outcome, error) {
	if tokenID == nil {
		return OutcomeInvalidEvent, nil
	}
	unlock := e.locks.Lock(store.KindPosition, tokenID.String())
	defer unlock()

	pos, ok, err := e.getOrCreatePosition(ctx, ec, tokenID)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeMissingPosition, nil
	}
	if pos.AppliedThrough(ec.Cursor()) {
		e.logger.Debug("skip applied event",
			zap.String("position_id", pos.ID),
			zap.Uint64("block_number", ec.BlockNumber),
			zap.Uint64("log_index", ec.LogIndex),
		)
		return OutcomeAlreadyApplied, nil
	}
	if e.isExcluded(pos.Pool) {
		e.logger.Debug("skip excluded pool", zap.String("position_id", pos.ID), zap.String("pool", pos.Pool))
		return OutcomeExcludedPool, nil
	}

	token0, token1, ok, err := e.resolveTokens(ctx, pos.Token0, pos.Token1)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeUnknownToken, nil
	}

	ok, err = e.ensurePool(ctx, ec, pos.Pool, token0, token1)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomePoolUnavailable, nil
	}

	amount0 := pricing.ScaleAmount(raw0, token0.Decimals)
	amount1 := pricing.ScaleAmount(raw1, token1.Decimals)
	mutate(pos, amount0, amount1)

	e.refreshFeeGrowth(ctx, ec, tokenID, pos)

	if err := e.commit(ctx, ec, pos); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (e *Engine) isExcluded(pool string) bool {
	_, ok := e.excluded[strings.ToLower(pool)]
	return ok
}

// refreshFeeGrowth copies the live fee-growth checkpoints onto the position.
// A failed read leaves the previous checkpoints in place.
func (e *Engine) refreshFeeGrowth(ctx context.Context, ec model.EventContext, tokenID *big.Int, pos *model.Position) {
	state, ok := e.reader.PositionState(ctx, blockContext(ec), tokenID).Get()
	if !ok {
		e.logger.Debug("fee growth refresh unavailable",
			zap.String("position_id", pos.ID),
			zap.Uint64("block_number", ec.BlockNumber),
		)
		return
	}
	if state.FeeGrowthInside0LastX128 != nil {
		pos.FeeGrowthInside0LastX128 = new(big.Int).Set(state.FeeGrowthInside0LastX128)
	}
	if state.FeeGrowthInside1LastX128 != nil {
		pos.FeeGrowthInside1LastX128 = new(big.Int).Set(state.FeeGrowthInside1LastX128)
	}
}

// commit writes the triggering transaction, the snapshot for the event block
// and then the position. The position carries the applied cursor, so it is
// written last.
func (e *Engine) commit(ctx context.Context, ec model.EventContext, pos *model.Position) error {
	cursor := ec.Cursor()
	pos.LastApplied = &cursor

	tx := &model.Transaction{ID: ec.TxHash, BlockNumber: ec.BlockNumber, Timestamp: ec.Timestamp}
	if tx.ID != "" {
		if err := e.repo.UpsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("upsert transaction: %w", err)
		}
	}
	if err := e.repo.UpsertPositionSnapshot(ctx, pos.Snapshot(ec.BlockNumber, ec.Timestamp, ec.TxHash)); err != nil {
		return fmt.Errorf("upsert position snapshot: %w", err)
	}
	if err := e.repo.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func blockContext(ec model.EventContext) chainstate.BlockContext {
	return chainstate.BlockContext{Number: ec.BlockNumber, Manager: ec.Address}
}
