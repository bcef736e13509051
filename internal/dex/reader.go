package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"positionScope/internal/chainstate"
	"positionScope/internal/retry"
)

const unknownTokenText = "unknown"

// ContractCaller performs eth_call. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig bounds every contract read.
type ReaderConfig struct {
	CallTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChainReader implements chainstate.StateReader over eth_call.
type ChainReader struct {
	cfg        ReaderConfig
	caller     ContractCaller
	logger     *zap.Logger
	tokenCache *xsync.Map[string, chainstate.TokenMetadata]
}

var _ chainstate.StateReader = (*ChainReader)(nil)

// NewChainReader builds a ChainReader.
func NewChainReader(cfg ReaderConfig, caller ContractCaller, logger *zap.Logger) *ChainReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainReader{
		cfg:        cfg,
		caller:     caller,
		logger:     logger,
		tokenCache: xsync.NewMap[string, chainstate.TokenMetadata](),
	}
}

// PositionState reads positions(tokenId) from the manager at the event block.
func (r *ChainReader) PositionState(ctx context.Context, block chainstate.BlockContext, tokenID *big.Int) chainstate.Result[chainstate.PositionState] {
	unavailable := chainstate.Unavailable[chainstate.PositionState]()
	if tokenID == nil || !common.IsHexAddress(block.Manager) {
		return unavailable
	}

	managerABI, err := PositionManagerABI()
	if err != nil {
		r.logger.Error("parse position manager abi", zap.Error(err))
		return unavailable
	}

	manager := common.HexToAddress(block.Manager)
	values, err := r.call(ctx, manager, managerABI, "positions", blockNumber(block.Number), tokenID)
	if err != nil {
		r.logger.Debug("positions call failed",
			zap.String("manager", block.Manager),
			zap.String("token_id", tokenID.String()),
			zap.Uint64("block_number", block.Number),
			zap.Error(err),
		)
		return unavailable
	}

	state, err := positionStateFromValues(values)
	if err != nil {
		r.logger.Warn("positions result", zap.String("token_id", tokenID.String()), zap.Error(err))
		return unavailable
	}
	return chainstate.Available(state)
}

func positionStateFromValues(values []interface{}) (chainstate.PositionState, error) {
	if len(values) < 10 {
		return chainstate.PositionState{}, fmt.Errorf("unexpected positions values: %d", len(values))
	}
	token0, err := asAddress(values[2])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("token1: %w", err)
	}
	fee, err := asUint24(values[4])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("fee: %w", err)
	}
	tickLowerInt, err := asBigInt(values[5])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("tick lower: %w", err)
	}
	tickLower, err := int24FromBig(tickLowerInt)
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("tick lower: %w", err)
	}
	tickUpperInt, err := asBigInt(values[6])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("tick upper: %w", err)
	}
	tickUpper, err := int24FromBig(tickUpperInt)
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("tick upper: %w", err)
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("liquidity: %w", err)
	}
	feeGrowth0, err := asBigInt(values[8])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("fee growth inside0: %w", err)
	}
	feeGrowth1, err := asBigInt(values[9])
	if err != nil {
		return chainstate.PositionState{}, fmt.Errorf("fee growth inside1: %w", err)
	}

	return chainstate.PositionState{
		Token0:                   strings.ToLower(token0.Hex()),
		Token1:                   strings.ToLower(token1.Hex()),
		Fee:                      fee,
		TickLower:                tickLower,
		TickUpper:                tickUpper,
		Liquidity:                liquidity,
		FeeGrowthInside0LastX128: feeGrowth0,
		FeeGrowthInside1LastX128: feeGrowth1,
	}, nil
}

// PoolState reads fee tier, fee growth, liquidity and slot0 from a pool.
func (r *ChainReader) PoolState(ctx context.Context, block chainstate.BlockContext, pool string) chainstate.Result[chainstate.PoolState] {
	unavailable := chainstate.Unavailable[chainstate.PoolState]()
	if !common.IsHexAddress(pool) {
		return unavailable
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		r.logger.Error("parse pool abi", zap.Error(err))
		return unavailable
	}

	state, err := r.readPoolState(ctx, common.HexToAddress(pool), poolABI, blockNumber(block.Number))
	if err != nil {
		r.logger.Debug("pool state read failed",
			zap.String("pool", pool),
			zap.Uint64("block_number", block.Number),
			zap.Error(err),
		)
		return unavailable
	}
	return chainstate.Available(state)
}

func (r *ChainReader) readPoolState(ctx context.Context, pool common.Address, poolABI abi.ABI, block *big.Int) (chainstate.PoolState, error) {
	var state chainstate.PoolState

	values, err := r.call(ctx, pool, poolABI, "fee", block)
	if err != nil {
		return state, err
	}
	if state.Fee, err = asUint24(values[0]); err != nil {
		return state, fmt.Errorf("fee: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "feeGrowthGlobal0X128", block)
	if err != nil {
		return state, err
	}
	if state.FeeGrowthGlobal0X128, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("fee growth global0: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "feeGrowthGlobal1X128", block)
	if err != nil {
		return state, err
	}
	if state.FeeGrowthGlobal1X128, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("fee growth global1: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "liquidity", block)
	if err != nil {
		return state, err
	}
	if state.Liquidity, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("liquidity: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "slot0", block)
	if err != nil {
		return state, err
	}
	if len(values) < 3 {
		return state, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	if state.SqrtPriceX96, err = asBigInt(values[0]); err != nil {
		return state, fmt.Errorf("sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return state, fmt.Errorf("tick: %w", err)
	}
	if state.Tick, err = int24FromBig(tickInt); err != nil {
		return state, fmt.Errorf("tick: %w", err)
	}
	observationIndex, err := asBigInt(values[2])
	if err != nil {
		return state, fmt.Errorf("observation index: %w", err)
	}
	state.ObservationIndex = uint16(observationIndex.Uint64())

	return state, nil
}

// TokenMetadata reads ERC20 metadata at the latest block. Symbol and name
// fall back to the bytes32 ABI and then to "unknown"; total supply falls
// back to zero. Only decimals may be unavailable. Results with known
// decimals are cached.
func (r *ChainReader) TokenMetadata(ctx context.Context, token string) chainstate.TokenMetadata {
	key := strings.ToLower(token)
	if meta, ok := r.tokenCache.Load(key); ok {
		return meta
	}

	meta := chainstate.TokenMetadata{
		Symbol:      unknownTokenText,
		Name:        unknownTokenText,
		TotalSupply: big.NewInt(0),
		Decimals:    chainstate.Unavailable[uint8](),
	}
	if !common.IsHexAddress(token) {
		return meta
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		r.logger.Error("parse erc20 string abi", zap.Error(err))
		return meta
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		r.logger.Error("parse erc20 bytes32 abi", zap.Error(err))
		return meta
	}

	addr := common.HexToAddress(token)

	if values, err := r.call(ctx, addr, stringABI, "decimals", nil); err == nil {
		if decimals, err := asUint8(values[0]); err == nil {
			meta.Decimals = chainstate.Available(decimals)
		}
	} else {
		r.logger.Debug("decimals call failed", zap.String("token", key), zap.Error(err))
	}

	if values, err := r.call(ctx, addr, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, addr, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok && symbol != "" {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", key), zap.Error(err))
	}

	if values, err := r.call(ctx, addr, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := r.call(ctx, addr, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok && name != "" {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call failed", zap.String("token", key), zap.Error(err))
	}

	if values, err := r.call(ctx, addr, stringABI, "totalSupply", nil); err == nil {
		if supply, err := asBigInt(values[0]); err == nil {
			meta.TotalSupply = supply
		}
	} else {
		r.logger.Debug("totalSupply call failed", zap.String("token", key), zap.Error(err))
	}

	if meta.Decimals.IsAvailable() {
		r.tokenCache.Store(key, meta)
	}
	return meta
}

func (r *ChainReader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx := ctx
		if r.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
		}
		out, err := r.caller.CallContract(callCtx, msg, block)
		if err != nil {
			if isRevert(err) {
				return retry.Permanent(err)
			}
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func blockNumber(number uint64) *big.Int {
	if number == 0 {
		return nil
	}
	return new(big.Int).SetUint64(number)
}
