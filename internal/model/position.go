package model

import (
	"encoding/json"
	"math/big"

	"github.com/shopspring/decimal"
)

// Position is the lifetime state of one position-manager token id.
type Position struct {
	ID string `json:"id"`
	// Owner stays nil until the first Transfer is applied.
	Owner     *string `json:"owner,omitempty"`
	Pool      string  `json:"pool"`
	Token0    string  `json:"token0"`
	Token1    string  `json:"token1"`
	TickLower string  `json:"tick_lower"`
	TickUpper string  `json:"tick_upper"`

	Liquidity *big.Int `json:"liquidity"`

	DepositedToken0 decimal.Decimal `json:"deposited_token0"`
	DepositedToken1 decimal.Decimal `json:"deposited_token1"`
	WithdrawnToken0 decimal.Decimal `json:"withdrawn_token0"`
	WithdrawnToken1 decimal.Decimal `json:"withdrawn_token1"`
	CollectedToken0 decimal.Decimal `json:"collected_token0"`
	CollectedToken1 decimal.Decimal `json:"collected_token1"`

	FeeGrowthInside0LastX128 *big.Int `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *big.Int `json:"fee_growth_inside1_last_x128"`

	Transaction string `json:"transaction"`

	// LastApplied is the newest event folded into this position. Events at or
	// before it are replays.
	LastApplied *Cursor `json:"last_applied,omitempty"`
}

// CollectedFeesToken0 is the part of collected token0 that was not withdrawn principal.
func (p *Position) CollectedFeesToken0() decimal.Decimal {
	return p.CollectedToken0.Sub(p.WithdrawnToken0)
}

// CollectedFeesToken1 is the part of collected token1 that was not withdrawn principal.
func (p *Position) CollectedFeesToken1() decimal.Decimal {
	return p.CollectedToken1.Sub(p.WithdrawnToken1)
}

// MarshalJSON writes the stored fields plus the derived collected-fee totals,
// so readers of the JSON form need not recompute them.
func (p Position) MarshalJSON() ([]byte, error) {
	type position Position
	return json.Marshal(struct {
		position
		CollectedFeesToken0 decimal.Decimal `json:"collected_fees_token0"`
		CollectedFeesToken1 decimal.Decimal `json:"collected_fees_token1"`
	}{
		position:            position(p),
		CollectedFeesToken0: p.CollectedFeesToken0(),
		CollectedFeesToken1: p.CollectedFeesToken1(),
	})
}

// AppliedThrough reports whether the event at c is already reflected.
func (p *Position) AppliedThrough(c Cursor) bool {
	return p.LastApplied != nil && !p.LastApplied.Before(c)
}

// OwnerOrEmpty returns the owner address or "" when no transfer has been seen.
func (p *Position) OwnerOrEmpty() string {
	if p.Owner == nil {
		return ""
	}
	return *p.Owner
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	if p.Owner != nil {
		owner := *p.Owner
		out.Owner = &owner
	}
	out.Liquidity = cloneInt(p.Liquidity)
	out.FeeGrowthInside0LastX128 = cloneInt(p.FeeGrowthInside0LastX128)
	out.FeeGrowthInside1LastX128 = cloneInt(p.FeeGrowthInside1LastX128)
	if p.LastApplied != nil {
		cursor := *p.LastApplied
		out.LastApplied = &cursor
	}
	return &out
}

// Snapshot captures the mutable state of the position at a block.
func (p *Position) Snapshot(blockNumber, timestamp uint64, txHash string) *PositionSnapshot {
	return &PositionSnapshot{
		ID:                       SnapshotID(p.ID, blockNumber),
		Owner:                    p.OwnerOrEmpty(),
		Pool:                     p.Pool,
		Position:                 p.ID,
		BlockNumber:              blockNumber,
		Timestamp:                timestamp,
		Liquidity:                cloneInt(p.Liquidity),
		DepositedToken0:          p.DepositedToken0,
		DepositedToken1:          p.DepositedToken1,
		WithdrawnToken0:          p.WithdrawnToken0,
		WithdrawnToken1:          p.WithdrawnToken1,
		CollectedFeesToken0:      p.CollectedFeesToken0(),
		CollectedFeesToken1:      p.CollectedFeesToken1(),
		Transaction:              txHash,
		FeeGrowthInside0LastX128: cloneInt(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: cloneInt(p.FeeGrowthInside1LastX128),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
