package reconcile

import (
	"encoding/json"
	"fmt"
	"math/big"

	"positionScope/internal/model"
)

// LiquidityChange is a parsed IncreaseLiquidity or DecreaseLiquidity event.
type LiquidityChange struct {
	TokenID   *big.Int
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// Collection is a parsed Collect event.
type Collection struct {
	TokenID *big.Int
	Amount0 *big.Int
	Amount1 *big.Int
}

// OwnershipTransfer is a parsed Transfer event.
type OwnershipTransfer struct {
	TokenID *big.Int
	To      string
}

func parseLiquidityChange(raw json.RawMessage) (LiquidityChange, error) {
	var data model.LiquidityEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return LiquidityChange{}, fmt.Errorf("decode liquidity payload: %w", err)
	}
	var p intParser
	out := LiquidityChange{
		TokenID:   p.parse("token_id", data.TokenID),
		Liquidity: p.parse("liquidity", data.Liquidity),
		Amount0:   p.parse("amount0", data.Amount0),
		Amount1:   p.parse("amount1", data.Amount1),
	}
	return out, p.err
}

func parseCollection(raw json.RawMessage) (Collection, error) {
	var data model.CollectEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Collection{}, fmt.Errorf("decode collect payload: %w", err)
	}
	var p intParser
	out := Collection{
		TokenID: p.parse("token_id", data.TokenID),
		Amount0: p.parse("amount0", data.Amount0),
		Amount1: p.parse("amount1", data.Amount1),
	}
	return out, p.err
}

func parseOwnershipTransfer(raw json.RawMessage) (OwnershipTransfer, error) {
	var data model.TransferEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return OwnershipTransfer{}, fmt.Errorf("decode transfer payload: %w", err)
	}
	var p intParser
	out := OwnershipTransfer{
		TokenID: p.parse("token_id", data.TokenID),
		To:      data.To,
	}
	if p.err == nil && out.To == "" {
		p.err = fmt.Errorf("transfer destination missing")
	}
	return out, p.err
}

type intParser struct {
	err error
}

func (p *intParser) parse(field, value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s %q", field, value)
		}
		return new(big.Int)
	}
	return v
}
