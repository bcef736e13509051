package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Token is an ERC20 asset referenced by positions. Metadata is fixed at
// creation; the aggregate fields belong to the pool aggregation path.
type Token struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply"`

	DerivedETH                   decimal.Decimal `json:"derived_eth"`
	Volume                       decimal.Decimal `json:"volume"`
	VolumeUSD                    decimal.Decimal `json:"volume_usd"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untracked_volume_usd"`
	FeesUSD                      decimal.Decimal `json:"fees_usd"`
	TotalValueLocked             decimal.Decimal `json:"total_value_locked"`
	TotalValueLockedUSD          decimal.Decimal `json:"total_value_locked_usd"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"total_value_locked_usd_untracked"`
	TxCount                      uint64          `json:"tx_count"`
	PoolCount                    uint64          `json:"pool_count"`
	WhitelistPools               []string        `json:"whitelist_pools"`
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	out.TotalSupply = cloneInt(t.TotalSupply)
	out.WhitelistPools = append([]string(nil), t.WhitelistPools...)
	return &out
}
