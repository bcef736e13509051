package model

import (
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is the state of a position after the last mutation in a block.
type PositionSnapshot struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Pool        string `json:"pool"`
	Position    string `json:"position"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`

	Liquidity           *big.Int        `json:"liquidity"`
	DepositedToken0     decimal.Decimal `json:"deposited_token0"`
	DepositedToken1     decimal.Decimal `json:"deposited_token1"`
	WithdrawnToken0     decimal.Decimal `json:"withdrawn_token0"`
	WithdrawnToken1     decimal.Decimal `json:"withdrawn_token1"`
	CollectedFeesToken0 decimal.Decimal `json:"collected_fees_token0"`
	CollectedFeesToken1 decimal.Decimal `json:"collected_fees_token1"`

	Transaction              string   `json:"transaction"`
	FeeGrowthInside0LastX128 *big.Int `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *big.Int `json:"fee_growth_inside1_last_x128"`
}

// SnapshotID builds the "<position>#<block>" key.
func SnapshotID(positionID string, blockNumber uint64) string {
	return positionID + "#" + strconv.FormatUint(blockNumber, 10)
}

// Clone returns a deep copy.
func (s *PositionSnapshot) Clone() *PositionSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Liquidity = cloneInt(s.Liquidity)
	out.FeeGrowthInside0LastX128 = cloneInt(s.FeeGrowthInside0LastX128)
	out.FeeGrowthInside1LastX128 = cloneInt(s.FeeGrowthInside1LastX128)
	return &out
}
