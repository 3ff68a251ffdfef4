package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

// PriceFromSqrtX96 renders a Q64.96 square-root price as a human-readable
// token1/token0 price with 18 decimal places.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int) string {
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, 36)
	return sqrt.Mul(sqrt).StringFixed(18)
}
