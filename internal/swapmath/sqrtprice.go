// Package swapmath computes token deltas between square-root prices and the
// price reached after consuming a given input amount. Rounding direction is
// always conservative for the pool: amounts a trader pays round up, amounts
// a trader receives round down.
package swapmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
)

var ErrZeroLiquidity = errors.New("swapmath: zero liquidity")

// Amount0Delta returns the token0 amount between two sqrt prices for the
// given liquidity: liquidity * 2^96 * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return nil, fixedpoint.ErrDivisionByZero
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		interim, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivRoundingUp(interim, sqrtRatioAX96)
	}
	interim, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(interim, sqrtRatioAX96), nil
}

// Amount1Delta returns the token1 amount between two sqrt prices:
// liquidity * (sqrtB - sqrtA) / 2^96.
func Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q96)
	}
	return fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q96)
}

// Amount0DeltaSigned is the signed overload used for liquidity changes:
// negative liquidity (burn) yields a negative, rounded-down amount.
func Amount0DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	mag, overflow := uint256.FromBig(new(big.Int).Abs(liquidity))
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	if liquidity.Sign() < 0 {
		amount, err := Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, mag, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(amount.ToBig()), nil
	}
	amount, err := Amount0Delta(sqrtRatioAX96, sqrtRatioBX96, mag, true)
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// Amount1DeltaSigned mirrors Amount0DeltaSigned for token1.
func Amount1DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	mag, overflow := uint256.FromBig(new(big.Int).Abs(liquidity))
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	if liquidity.Sign() < 0 {
		amount, err := Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, mag, false)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Neg(amount.ToBig()), nil
	}
	amount, err := Amount1Delta(sqrtRatioAX96, sqrtRatioBX96, mag, true)
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

// NextSqrtPriceFromInput returns the sqrt price after consuming amountIn of
// the input asset. zeroForOne selects the falling-price direction (selling
// token0).
func NextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountIn)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountIn)
}

// nextSqrtPriceFromAmount0RoundingUp prefers the precise form
// liquidity*sqrtP / (liquidity + amount*sqrtP) and falls back to
// liquidity / (liquidity/sqrtP + amount) when the product would not fit
// 256 bits. Both round up so the price never moves too far.
func nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtPriceX96), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPriceX96)
	if !overflow {
		denominator, carry := new(uint256.Int).AddOverflow(numerator1, product)
		if !carry {
			return fixedpoint.MulDivRoundingUp(numerator1, sqrtPriceX96, denominator)
		}
	}

	denominator := new(uint256.Int).Div(numerator1, sqrtPriceX96)
	denominator.Add(denominator, amount)
	return fixedpoint.DivRoundingUp(numerator1, denominator)
}

// nextSqrtPriceFromAmount1RoundingDown uses the additive form
// sqrtP + (amount << 96) / liquidity, rounding the quotient down.
func nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amount *uint256.Int) (*uint256.Int, error) {
	var quotient *uint256.Int
	if !amount.Gt(fixedpoint.MaxUint160) {
		quotient = new(uint256.Int).Lsh(amount, 96)
		quotient.Div(quotient, liquidity)
	} else {
		var err error
		quotient, err = fixedpoint.MulDiv(amount, fixedpoint.Q96, liquidity)
		if err != nil {
			return nil, err
		}
	}
	next, carry := new(uint256.Int).AddOverflow(sqrtPriceX96, quotient)
	if carry || next.Gt(fixedpoint.MaxUint160) {
		return nil, fixedpoint.ErrOverflow
	}
	return next, nil
}
