package pool

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"

	"clamm/internal/fixedpoint"
)

// PositionKey identifies a position by the hash of (owner, lowerTick,
// upperTick). Re-minting the same range for the same owner extends the
// existing position.
type PositionKey [32]byte

func NewPositionKey(owner common.Address, lowerTick, upperTick int32) PositionKey {
	var buf [28]byte
	copy(buf[:20], owner.Bytes())
	binary.BigEndian.PutUint32(buf[20:24], uint32(lowerTick))
	binary.BigEndian.PutUint32(buf[24:28], uint32(upperTick))
	return blake3.Sum256(buf[:])
}

// PositionInfo tracks one owner's liquidity in one tick range together with
// the fee checkpoint taken at the last touch.
type PositionInfo struct {
	Liquidity *uint256.Int
	// FeeGrowthInside0LastX128 and FeeGrowthInside1LastX128 are the
	// range's fee-growth-inside values at the last update. The difference
	// against the current inside values prices fees accrued since.
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
	// TokensOwed0 and TokensOwed1 are collectable balances, fed by burns
	// and fee accrual and drained by Collect.
	TokensOwed0 *uint256.Int
	TokensOwed1 *uint256.Int
}

func newPositionInfo() *PositionInfo {
	return &PositionInfo{
		Liquidity:                new(uint256.Int),
		FeeGrowthInside0LastX128: new(uint256.Int),
		FeeGrowthInside1LastX128: new(uint256.Int),
		TokensOwed0:              new(uint256.Int),
		TokensOwed1:              new(uint256.Int),
	}
}

func (p *PositionInfo) clone() *PositionInfo {
	return &PositionInfo{
		Liquidity:                new(uint256.Int).Set(p.Liquidity),
		FeeGrowthInside0LastX128: new(uint256.Int).Set(p.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(p.FeeGrowthInside1LastX128),
		TokensOwed0:              new(uint256.Int).Set(p.TokensOwed0),
		TokensOwed1:              new(uint256.Int).Set(p.TokensOwed1),
	}
}

// update settles fees accrued since the last checkpoint into TokensOwed and
// applies the liquidity delta. A delta of zero is a poke: it refreshes the
// checkpoint without touching liquidity, and requires the position to exist.
func (p *PositionInfo) update(liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) error {
	if liquidityDelta.Sign() == 0 && p.Liquidity.IsZero() {
		return ErrZeroLiquidity
	}

	owed0, err := fixedpoint.MulDiv(
		fixedpoint.WrappingSub(feeGrowthInside0X128, p.FeeGrowthInside0LastX128),
		p.Liquidity,
		fixedpoint.Q128,
	)
	if err != nil {
		return err
	}
	owed1, err := fixedpoint.MulDiv(
		fixedpoint.WrappingSub(feeGrowthInside1X128, p.FeeGrowthInside1LastX128),
		p.Liquidity,
		fixedpoint.Q128,
	)
	if err != nil {
		return err
	}

	liquidityNext, err := fixedpoint.AddLiquidityDelta(p.Liquidity, liquidityDelta)
	if err != nil {
		return err
	}

	p.Liquidity = liquidityNext
	p.FeeGrowthInside0LastX128.Set(feeGrowthInside0X128)
	p.FeeGrowthInside1LastX128.Set(feeGrowthInside1X128)
	p.TokensOwed0.Add(p.TokensOwed0, owed0)
	p.TokensOwed1.Add(p.TokensOwed1, owed1)
	return nil
}

// positionLedger maps position keys to their state.
type positionLedger map[PositionKey]*PositionInfo

func (pl positionLedger) get(key PositionKey) *PositionInfo {
	if info, ok := pl[key]; ok {
		return info
	}
	info := newPositionInfo()
	pl[key] = info
	return info
}

func (pl positionLedger) clone() positionLedger {
	out := make(positionLedger, len(pl))
	for key, info := range pl {
		out[key] = info.clone()
	}
	return out
}
