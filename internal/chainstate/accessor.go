package chainstate

import (
	"context"
	"math/big"
)

// BlockContext pins a read to the block of the event being processed and to
// the position-manager contract that emitted it.
type BlockContext struct {
	Number  uint64
	Manager string
}

// PositionState is the structural data returned by positions(tokenId).
type PositionState struct {
	Token0                   string
	Token1                   string
	Fee                      uint32
	TickLower                int32
	TickUpper                int32
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

// PoolState is the live state of a pool contract.
type PoolState struct {
	Fee                  uint32
	FeeGrowthGlobal0X128 *big.Int
	FeeGrowthGlobal1X128 *big.Int
	Liquidity            *big.Int
	SqrtPriceX96         *big.Int
	Tick                 int32
	ObservationIndex     uint16
}

// TokenMetadata is ERC20 metadata. Decimals is a separate Result because
// tokens that do not implement decimals() are unusable for scaled accounting
// even when the other fields resolve.
type TokenMetadata struct {
	Symbol      string
	Name        string
	TotalSupply *big.Int
	Decimals    Result[uint8]
}

// StateReader is the read-only view of contract state. Implementations never
// return errors: every failure degrades to Unavailable.
type StateReader interface {
	PositionState(ctx context.Context, block BlockContext, tokenID *big.Int) Result[PositionState]
	PoolState(ctx context.Context, block BlockContext, pool string) Result[PoolState]
	TokenMetadata(ctx context.Context, token string) TokenMetadata
}

// PoolRegistry resolves the canonical pool address for a pair and fee tier.
// It is total: the address is returned even when no pool is deployed there.
type PoolRegistry interface {
	PoolAddress(token0, token1 string, fee uint32) string
}
