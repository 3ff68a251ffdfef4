// Package tickmath converts between discrete tick indices and Q64.96
// square-root prices. A tick i corresponds to price 1.0001^i; the stored
// value is sqrt(1.0001^i) * 2^96.
package tickmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
)

const (
	// MinTick is the lowest tick for which 1.0001^tick fits the price domain.
	MinTick int32 = -887272
	// MaxTick is the highest representable tick.
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick). The inverse conversion
	// treats this bound as exclusive.
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
)

var (
	ErrTickOutOfRange  = errors.New("tickmath: tick out of range")
	ErrPriceOutOfRange = errors.New("tickmath: sqrt price out of range")
)

// sqrtRatioMultipliers[i] is sqrt(1.0001^-(2^i)) in Q128.128, used by the
// exponentiation-by-squaring in SqrtRatioAtTick.
var sqrtRatioMultipliers = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var (
	q128One = uint256.MustFromHex("0x100000000000000000000000000000000")
	q32     = uint256.MustFromHex("0x100000000")

	logSqrt10001Scale = big.NewInt(0).SetBytes(mustBytes("255738958999603826347141"))
	tickLowOffset     = big.NewInt(0).SetBytes(mustBytes("3402992956809132418596140100660247210"))
	tickHighOffset    = big.NewInt(0).SetBytes(mustBytes("291339464771989622907027621153398088495"))
)

func mustBytes(dec string) []byte {
	v, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		panic("tickmath: bad constant " + dec)
	}
	return v.Bytes()
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 as a Q64.96 value.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}
	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-int64(tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioMultipliers[0])
	} else {
		ratio.Set(q128One)
	}
	for i := 1; i < len(sqrtRatioMultipliers); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, sqrtRatioMultipliers[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(fixedpoint.MaxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the tick-at-price inverse holds.
	roundUp := !new(uint256.Int).Mod(ratio, q32).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is at most the
// given value. It is the exact left-inverse of SqrtRatioAtTick over
// [MinSqrtRatio, MaxSqrtRatio).
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, ErrPriceOutOfRange
	}

	ratio := new(big.Int).Lsh(sqrtPriceX96.ToBig(), 32)
	msb := ratio.BitLen() - 1

	r := new(big.Int)
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	// Fixed-point binary logarithm: 14 fractional bits of log2(ratio),
	// accumulated in a signed Q64.64 value.
	log2 := new(big.Int).Lsh(big.NewInt(int64(msb)-128), 64)
	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f := new(big.Int).Rsh(r, 128)
		if f.Sign() != 0 {
			log2.Or(log2, new(big.Int).Lsh(f, uint(63-i)))
			r.Rsh(r, 1)
		}
	}

	logSqrt10001 := new(big.Int).Mul(log2, logSqrt10001Scale)

	tickLow := new(big.Int).Sub(logSqrt10001, tickLowOffset)
	tickLow.Rsh(tickLow, 128)
	tickHigh := new(big.Int).Add(logSqrt10001, tickHighOffset)
	tickHigh.Rsh(tickHigh, 128)

	low := int32(tickLow.Int64())
	high := int32(tickHigh.Int64())
	if low == high {
		return low, nil
	}
	highRatio, err := SqrtRatioAtTick(high)
	if err != nil {
		return 0, err
	}
	if !sqrtPriceX96.Lt(highRatio) {
		return high, nil
	}
	return low, nil
}

// MaxLiquidityPerTick caps per-tick gross liquidity so that the sum across
// every usable tick cannot overflow a uint128.
func MaxLiquidityPerTick(tickSpacing int32) *uint256.Int {
	minUsable := (MinTick / tickSpacing) * tickSpacing
	maxUsable := (MaxTick / tickSpacing) * tickSpacing
	numTicks := uint64((maxUsable-minUsable)/tickSpacing) + 1
	return new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(numTicks))
}
