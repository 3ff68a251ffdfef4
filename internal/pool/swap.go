package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"clamm/internal/fixedpoint"
	"clamm/internal/swapmath"
	"clamm/internal/tickmath"
)

// swapState is the working copy of pool state a swap iterates on. Only the
// tick ledger is mutated in place during the loop; everything else commits
// after the loop succeeds.
type swapState struct {
	amountRemaining     *uint256.Int
	amountCalculated    *uint256.Int
	sqrtPriceX96        *uint256.Int
	tick                int32
	feeGrowthGlobalX128 *uint256.Int
	liquidity           *uint256.Int
}

// Swap trades an exact input amount of one token for the other, walking
// tick by tick until the input is consumed or the price limit is reached.
// zeroForOne sells token0 and moves the price down. The output is sent to
// recipient before cb is asked to pay the input; a callback that underpays
// rolls the whole swap back.
//
// The returned amounts follow the pool's sign convention: positive is owed
// to the pool, negative was paid out.
func (p *Pool) Swap(recipient common.Address, zeroForOne bool, amountIn, sqrtPriceLimitX96 *uint256.Int, cb SwapCallback, data []byte) (*big.Int, *big.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	limit, err := p.swapPriceLimit(zeroForOne, sqrtPriceLimitX96)
	if err != nil {
		return nil, nil, err
	}

	prior := p.snapshot()
	state, err := p.computeSwap(zeroForOne, amountIn, limit)
	if err != nil {
		p.restore(prior)
		return nil, nil, err
	}

	if p.tick != state.tick {
		p.oracle.write(p.now(), p.tick, p.liquidity)
	}
	p.sqrtPriceX96 = state.sqrtPriceX96
	p.tick = state.tick
	p.liquidity = state.liquidity
	if zeroForOne {
		p.feeGrowthGlobal0X128 = state.feeGrowthGlobalX128
	} else {
		p.feeGrowthGlobal1X128 = state.feeGrowthGlobalX128
	}

	consumed := new(uint256.Int).Sub(amountIn, state.amountRemaining)
	var amount0, amount1 *big.Int
	var tokenIn, tokenOut common.Address
	if zeroForOne {
		amount0 = consumed.ToBig()
		amount1 = new(big.Int).Neg(state.amountCalculated.ToBig())
		tokenIn, tokenOut = p.token0, p.token1
	} else {
		amount0 = new(big.Int).Neg(state.amountCalculated.ToBig())
		amount1 = consumed.ToBig()
		tokenIn, tokenOut = p.token1, p.token0
	}

	if !state.amountCalculated.IsZero() {
		if err := p.ledger.Transfer(tokenOut, p.addr, recipient, state.amountCalculated); err != nil {
			p.restore(prior)
			return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	balanceInBefore := p.ledger.BalanceOf(tokenIn, p.addr)
	cbErr := cb.PaySwap(amount0, amount1, data)
	if cbErr == nil && !p.paid(tokenIn, balanceInBefore, consumed) {
		cbErr = fmt.Errorf("input balance short of %s", consumed.Dec())
	}
	if cbErr != nil {
		p.restore(prior)
		if !state.amountCalculated.IsZero() {
			if rerr := p.ledger.Transfer(tokenOut, recipient, p.addr, state.amountCalculated); rerr != nil {
				return nil, nil, fmt.Errorf("%w: %v (output clawback failed: %v)", ErrInsufficientInput, cbErr, rerr)
			}
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientInput, cbErr)
	}

	p.log.Debug("swap",
		zap.String("recipient", recipient.Hex()),
		zap.Bool("zeroForOne", zeroForOne),
		zap.String("amountIn", consumed.Dec()),
		zap.String("amountOut", state.amountCalculated.Dec()),
		zap.Int32("tick", p.tick),
	)
	return amount0, amount1, nil
}

// Quote prices a swap against the current state without settling or
// mutating anything. It returns the input that would be consumed and the
// output that would be received.
func (p *Pool) Quote(zeroForOne bool, amountIn, sqrtPriceLimitX96 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	limit, err := p.swapPriceLimit(zeroForOne, sqrtPriceLimitX96)
	if err != nil {
		return nil, nil, err
	}

	prior := p.snapshot()
	state, err := p.computeSwap(zeroForOne, amountIn, limit)
	// The tick ledger is crossed in place during the loop; put it back.
	p.restore(prior)
	if err != nil {
		return nil, nil, err
	}
	consumed := new(uint256.Int).Sub(amountIn, state.amountRemaining)
	return consumed, state.amountCalculated, nil
}

// swapPriceLimit validates the limit against the swap direction, defaulting
// to the edge of the price domain when none is given.
func (p *Pool) swapPriceLimit(zeroForOne bool, sqrtPriceLimitX96 *uint256.Int) (*uint256.Int, error) {
	if zeroForOne {
		if sqrtPriceLimitX96 == nil {
			return new(uint256.Int).AddUint64(tickmath.MinSqrtRatio, 1), nil
		}
		if !sqrtPriceLimitX96.Lt(p.sqrtPriceX96) || !sqrtPriceLimitX96.Gt(tickmath.MinSqrtRatio) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, sqrtPriceLimitX96)
		}
		return sqrtPriceLimitX96, nil
	}
	if sqrtPriceLimitX96 == nil {
		return new(uint256.Int).SubUint64(tickmath.MaxSqrtRatio, 1), nil
	}
	if !sqrtPriceLimitX96.Gt(p.sqrtPriceX96) || !sqrtPriceLimitX96.Lt(tickmath.MaxSqrtRatio) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, sqrtPriceLimitX96)
	}
	return sqrtPriceLimitX96, nil
}

// computeSwap runs the tick-walking loop. Ranges with zero liquidity are
// skipped by jumping the price straight to the next boundary; initialized
// ticks are crossed in place so their fee-growth-outside reframes exactly
// once.
func (p *Pool) computeSwap(zeroForOne bool, amountIn, limit *uint256.Int) (*swapState, error) {
	state := &swapState{
		amountRemaining:  new(uint256.Int).Set(amountIn),
		amountCalculated: new(uint256.Int),
		sqrtPriceX96:     new(uint256.Int).Set(p.sqrtPriceX96),
		tick:             p.tick,
		liquidity:        new(uint256.Int).Set(p.liquidity),
	}
	if zeroForOne {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.feeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(p.feeGrowthGlobal1X128)
	}

	for !state.amountRemaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		stepStartPrice := new(uint256.Int).Set(state.sqrtPriceX96)

		nextTick, initialized := p.bitmap.nextInitialized(state.tick, p.tickSpacing, zeroForOne)
		if nextTick < tickmath.MinTick {
			nextTick = tickmath.MinTick
		} else if nextTick > tickmath.MaxTick {
			nextTick = tickmath.MaxTick
		}
		sqrtPriceNext, err := tickmath.SqrtRatioAtTick(nextTick)
		if err != nil {
			return nil, err
		}

		target := sqrtPriceNext
		if zeroForOne {
			if sqrtPriceNext.Lt(limit) {
				target = limit
			}
		} else {
			if sqrtPriceNext.Gt(limit) {
				target = limit
			}
		}

		if state.liquidity.IsZero() {
			state.sqrtPriceX96 = new(uint256.Int).Set(target)
		} else {
			step, err := swapmath.ComputeStep(state.sqrtPriceX96, target, state.liquidity, state.amountRemaining, p.fee)
			if err != nil {
				return nil, err
			}
			consumed := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
			if consumed.Gt(state.amountRemaining) {
				state.amountRemaining.Clear()
			} else {
				state.amountRemaining.Sub(state.amountRemaining, consumed)
			}
			state.amountCalculated.Add(state.amountCalculated, step.AmountOut)
			if !step.FeeAmount.IsZero() {
				growth, err := fixedpoint.MulDiv(step.FeeAmount, fixedpoint.Q128, state.liquidity)
				if err != nil {
					return nil, err
				}
				state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, growth)
			}
			state.sqrtPriceX96 = step.SqrtPriceNextX96
		}

		if state.sqrtPriceX96.Eq(sqrtPriceNext) {
			if initialized {
				var net *big.Int
				if zeroForOne {
					net = new(big.Int).Neg(p.ticks.cross(nextTick, state.feeGrowthGlobalX128, p.feeGrowthGlobal1X128))
				} else {
					net = p.ticks.cross(nextTick, p.feeGrowthGlobal0X128, state.feeGrowthGlobalX128)
				}
				state.liquidity, err = fixedpoint.AddLiquidityDelta(state.liquidity, net)
				if err != nil {
					return nil, err
				}
			}
			if zeroForOne {
				state.tick = nextTick - 1
			} else {
				state.tick = nextTick
			}
		} else if !state.sqrtPriceX96.Eq(stepStartPrice) {
			state.tick, err = tickmath.TickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return nil, err
			}
		}
	}

	if !state.amountRemaining.IsZero() && state.liquidity.IsZero() {
		return nil, ErrNotEnoughLiquidity
	}
	return state, nil
}
