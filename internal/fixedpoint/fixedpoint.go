// Package fixedpoint provides the Q64.96 / Q128.128 constants and the
// rounding-aware multiply-divide primitives the pool math is built on.
// All intermediates are carried at 512 bits so a*b never loses precision
// before the division.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// Q96 is 2^96, the denominator of the sqrt-price fixed point.
	Q96 = uint256.MustFromHex("0x1000000000000000000000000")
	// Q128 is 2^128, the denominator of the fee-growth fixed point.
	Q128 = uint256.MustFromHex("0x100000000000000000000000000000000")

	MaxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")
	MaxUint160 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffff")
	MaxUint256 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
)

var (
	// ErrOverflow reports a result that does not fit its fixed width.
	// Arithmetic never saturates silently.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrDivisionByZero reports a zero denominator.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

// MulDiv returns floor(a*b/denominator). The product is computed at full
// precision; only the final quotient must fit in 256 bits.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	product.Div(product, denominator.ToBig())
	result, overflow := uint256.FromBig(product)
	if overflow {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	quotient, remainder := new(big.Int).QuoRem(product, denominator.ToBig(), new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	result, overflow := uint256.FromBig(quotient)
	if overflow {
		return nil, ErrOverflow
	}
	return result, nil
}

// DivRoundingUp returns ceil(x/y) for 256-bit operands.
func DivRoundingUp(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient := new(uint256.Int).Div(x, y)
	if !new(uint256.Int).Mod(x, y).IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient, nil
}

// AddLiquidityDelta applies a signed delta to an unsigned 128-bit liquidity
// value. A delta that would take the value negative or past 2^128-1 is an
// explicit error, never a wrap.
func AddLiquidityDelta(liquidity *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	result := new(big.Int).Add(liquidity.ToBig(), delta)
	if result.Sign() < 0 {
		return nil, ErrOverflow
	}
	out, overflow := uint256.FromBig(result)
	if overflow || out.Gt(MaxUint128) {
		return nil, ErrOverflow
	}
	return out, nil
}

// WrappingSub returns a-b modulo 2^256. Fee-growth accounting relies on
// wrapping subtraction so the inside-range deltas stay correct even after
// the global accumulators overflow.
func WrappingSub(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}
