package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Pool is a V3 pool contract referenced by positions. Only the structural
// fields are seeded here; prices and volume/TVL aggregates start at zero.
type Pool struct {
	ID                   string   `json:"id"`
	Token0               string   `json:"token0"`
	Token1               string   `json:"token1"`
	FeeTier              uint32   `json:"fee_tier"`
	Liquidity            *big.Int `json:"liquidity"`
	SqrtPrice            *big.Int `json:"sqrt_price"`
	FeeGrowthGlobal0X128 *big.Int `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 *big.Int `json:"fee_growth_global1_x128"`
	ObservationIndex     uint64   `json:"observation_index"`

	Token0Price decimal.Decimal `json:"token0_price"`
	Token1Price decimal.Decimal `json:"token1_price"`

	CreatedAtTimestamp     uint64 `json:"created_at_timestamp"`
	CreatedAtBlockNumber   uint64 `json:"created_at_block_number"`
	LiquidityProviderCount uint64 `json:"liquidity_provider_count"`
	TxCount                uint64 `json:"tx_count"`

	TotalValueLockedToken0       decimal.Decimal `json:"total_value_locked_token0"`
	TotalValueLockedToken1       decimal.Decimal `json:"total_value_locked_token1"`
	TotalValueLockedUSD          decimal.Decimal `json:"total_value_locked_usd"`
	TotalValueLockedETH          decimal.Decimal `json:"total_value_locked_eth"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"total_value_locked_usd_untracked"`
	VolumeToken0                 decimal.Decimal `json:"volume_token0"`
	VolumeToken1                 decimal.Decimal `json:"volume_token1"`
	VolumeUSD                    decimal.Decimal `json:"volume_usd"`
	FeesUSD                      decimal.Decimal `json:"fees_usd"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untracked_volume_usd"`
	CollectedFeesToken0          decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1          decimal.Decimal `json:"collected_fees_token1"`
	CollectedFeesUSD             decimal.Decimal `json:"collected_fees_usd"`
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.Liquidity = cloneInt(p.Liquidity)
	out.SqrtPrice = cloneInt(p.SqrtPrice)
	out.FeeGrowthGlobal0X128 = cloneInt(p.FeeGrowthGlobal0X128)
	out.FeeGrowthGlobal1X128 = cloneInt(p.FeeGrowthGlobal1X128)
	return &out
}
