package swapmath

import (
	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
)

// FeeDenominator is the parts-per-million base for pool fee rates.
const FeeDenominator = 1_000_000

// Step is the outcome of filling as much as possible of a swap within a
// single tick range.
type Step struct {
	SqrtPriceNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeStep fills up to amountRemaining of input between the current price
// and the target boundary. When the boundary is not reached, amountIn is
// recomputed from the achieved price so both paths price the fill
// identically; the leftover input becomes the fee. When the boundary is
// reached the fee is charged on top of amountIn.
func ComputeStep(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, amountRemaining *uint256.Int, feePips uint32) (Step, error) {
	zeroForOne := !sqrtPriceCurrentX96.Lt(sqrtPriceTargetX96)

	feeRate := uint256.NewInt(uint64(feePips))
	feeBase := uint256.NewInt(FeeDenominator)
	netDenominator := new(uint256.Int).Sub(feeBase, feeRate)

	amountRemainingLessFee, err := fixedpoint.MulDiv(amountRemaining, netDenominator, feeBase)
	if err != nil {
		return Step{}, err
	}

	var amountIn *uint256.Int
	if zeroForOne {
		amountIn, err = Amount0Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, true)
	} else {
		amountIn, err = Amount1Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, true)
	}
	if err != nil {
		return Step{}, err
	}

	var sqrtPriceNextX96 *uint256.Int
	if !amountRemainingLessFee.Lt(amountIn) {
		sqrtPriceNextX96 = new(uint256.Int).Set(sqrtPriceTargetX96)
	} else {
		sqrtPriceNextX96, err = NextSqrtPriceFromInput(sqrtPriceCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
		if err != nil {
			return Step{}, err
		}
	}
	reachedTarget := sqrtPriceNextX96.Eq(sqrtPriceTargetX96)

	var amountOut *uint256.Int
	if zeroForOne {
		if !reachedTarget {
			amountIn, err = Amount0Delta(sqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, true)
			if err != nil {
				return Step{}, err
			}
		}
		amountOut, err = Amount1Delta(sqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, false)
	} else {
		if !reachedTarget {
			amountIn, err = Amount1Delta(sqrtPriceCurrentX96, sqrtPriceNextX96, liquidity, true)
			if err != nil {
				return Step{}, err
			}
		}
		amountOut, err = Amount0Delta(sqrtPriceCurrentX96, sqrtPriceNextX96, liquidity, false)
	}
	if err != nil {
		return Step{}, err
	}

	var feeAmount *uint256.Int
	if !reachedTarget {
		// Partial fill: whatever input the achieved price did not
		// consume is the fee, so the trader's full remaining amount
		// is spent exactly.
		feeAmount = new(uint256.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount, err = fixedpoint.MulDivRoundingUp(amountIn, feeRate, netDenominator)
		if err != nil {
			return Step{}, err
		}
	}

	return Step{
		SqrtPriceNextX96: sqrtPriceNextX96,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		FeeAmount:        feeAmount,
	}, nil
}
