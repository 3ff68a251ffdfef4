package pool

import (
	"math/big"

	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
)

// TickInfo is the per-tick ledger entry, materialized only for ticks that
// have been used as a position boundary.
type TickInfo struct {
	// LiquidityGross is the total liquidity referencing this tick as a
	// boundary. It only decides whether the tick is initialized.
	LiquidityGross *uint256.Int
	// LiquidityNet is the signed delta applied to active liquidity when
	// the price crosses this tick moving upward.
	LiquidityNet *big.Int
	// FeeGrowthOutside0X128 and FeeGrowthOutside1X128 track fee growth
	// on the side of the tick away from the current price.
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int
	Initialized           bool
}

func newTickInfo() *TickInfo {
	return &TickInfo{
		LiquidityGross:        new(uint256.Int),
		LiquidityNet:          new(big.Int),
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
	}
}

func (t *TickInfo) clone() *TickInfo {
	return &TickInfo{
		LiquidityGross:        new(uint256.Int).Set(t.LiquidityGross),
		LiquidityNet:          new(big.Int).Set(t.LiquidityNet),
		FeeGrowthOutside0X128: new(uint256.Int).Set(t.FeeGrowthOutside0X128),
		FeeGrowthOutside1X128: new(uint256.Int).Set(t.FeeGrowthOutside1X128),
		Initialized:           t.Initialized,
	}
}

// tickLedger is the sparse tick index -> TickInfo mapping.
type tickLedger map[int32]*TickInfo

func (tl tickLedger) get(tick int32) *TickInfo {
	if info, ok := tl[tick]; ok {
		return info
	}
	info := newTickInfo()
	tl[tick] = info
	return info
}

func (tl tickLedger) clear(tick int32) {
	delete(tl, tick)
}

func (tl tickLedger) clone() tickLedger {
	out := make(tickLedger, len(tl))
	for tick, info := range tl {
		out[tick] = info.clone()
	}
	return out
}

// update applies a liquidity delta to one boundary of a range and reports
// whether the tick flipped between initialized and uninitialized. A tick
// initialized at or below the current tick seeds its fee-growth-outside from
// the global accumulators: all prior fee history is assumed to have happened
// below it.
func (tl tickLedger) update(
	tick, currentTick int32,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	upper bool,
	maxLiquidity *uint256.Int,
) (bool, error) {
	info := tl.get(tick)

	grossBefore := info.LiquidityGross
	grossAfter, err := fixedpoint.AddLiquidityDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Gt(maxLiquidity) {
		return false, fixedpoint.ErrOverflow
	}
	flipped := grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() {
		if tick <= currentTick {
			info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
			info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
		}
		info.Initialized = true
	}

	info.LiquidityGross = grossAfter
	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}
	if info.LiquidityNet.CmpAbs(fixedpoint.MaxUint128.ToBig()) > 0 {
		return false, fixedpoint.ErrOverflow
	}

	if flipped && grossAfter.IsZero() {
		info.Initialized = false
	}
	return flipped, nil
}

// cross reframes the tick's fee-growth-outside to the other side of the tick
// and returns the net liquidity for the caller to apply.
func (tl tickLedger) cross(tick int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) *big.Int {
	info := tl.get(tick)
	info.FeeGrowthOutside0X128 = fixedpoint.WrappingSub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128 = fixedpoint.WrappingSub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return info.LiquidityNet
}

// feeGrowthInside returns the fee growth accrued strictly inside
// [lowerTick, upperTick]: global growth minus growth below the lower bound
// minus growth above the upper bound. Subtraction wraps modulo 2^256.
func (tl tickLedger) feeGrowthInside(
	lowerTick, upperTick, currentTick int32,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (*uint256.Int, *uint256.Int) {
	lower := tl.get(lowerTick)
	upper := tl.get(upperTick)

	var below0, below1 *uint256.Int
	if currentTick >= lowerTick {
		below0 = lower.FeeGrowthOutside0X128
		below1 = lower.FeeGrowthOutside1X128
	} else {
		below0 = fixedpoint.WrappingSub(feeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
		below1 = fixedpoint.WrappingSub(feeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
	}

	var above0, above1 *uint256.Int
	if currentTick < upperTick {
		above0 = upper.FeeGrowthOutside0X128
		above1 = upper.FeeGrowthOutside1X128
	} else {
		above0 = fixedpoint.WrappingSub(feeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
		above1 = fixedpoint.WrappingSub(feeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
	}

	inside0 := fixedpoint.WrappingSub(fixedpoint.WrappingSub(feeGrowthGlobal0X128, below0), above0)
	inside1 := fixedpoint.WrappingSub(fixedpoint.WrappingSub(feeGrowthGlobal1X128, below1), above1)
	return inside0, inside1
}
