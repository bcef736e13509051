package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept for derived prices.
const PriceScale = 40

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// ScaleAmount converts a raw token amount into token units: raw / 10^decimals.
// The result is exact.
func ScaleAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// PricesFromSqrtPriceX96 derives token0Price (token0 per token1) and
// token1Price (token1 per token0) from a Q64.96 square-root price, adjusted
// for each token's decimals. A zero price yields two zero prices.
func PricesFromSqrtPriceX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (token0Price, token1Price decimal.Decimal) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return decimal.Zero, decimal.Zero
	}

	// token1Price = sqrtP^2 / 2^192 * 10^d0 / 10^d1
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, pow10(decimals0))
	den := new(big.Int).Mul(q192, pow10(decimals1))

	token1Price = decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), PriceScale)
	token0Price = decimal.NewFromBigInt(den, 0).DivRound(decimal.NewFromBigInt(num, 0), PriceScale)
	return token0Price, token1Price
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
