// Package pool implements a concentrated-liquidity pool state machine for a
// token pair: positions over tick ranges, fee accounting, callback-settled
// mints, swaps and flash loans, and a price observation oracle.
package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"clamm/internal/fixedpoint"
	"clamm/internal/swapmath"
	"clamm/internal/tickmath"
)

// TokenLedger is the balance backend pools settle against. Pools hold their
// reserves under their own address and verify callback payments by
// re-reading balances.
type TokenLedger interface {
	BalanceOf(token, holder common.Address) *uint256.Int
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// MintCallback pays the tokens a mint owes. The callback must transfer at
// least amount0 of token0 and amount1 of token1 to the pool address before
// returning.
type MintCallback interface {
	PayMint(amount0, amount1 *uint256.Int, data []byte) error
}

// SwapCallback pays the input side of a swap. Positive amounts are owed to
// the pool, negative amounts were already sent to the recipient.
type SwapCallback interface {
	PaySwap(amount0, amount1 *big.Int, data []byte) error
}

// FlashCallback repays a flash loan: principal plus the quoted fees must be
// back in the pool before it returns.
type FlashCallback interface {
	RepayFlash(fee0, fee1 *uint256.Int, data []byte) error
}

// Config carries the immutable parameters of a pool.
type Config struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32 // pips, e.g. 3000 = 0.3%
	TickSpacing int32
	Address     common.Address // the pool's holder address in the ledger
	Ledger      TokenLedger
	Logger      *zap.Logger
	// Now supplies oracle timestamps. Defaults to wall-clock seconds.
	Now func() uint32
}

func (c Config) validate() error {
	if c.Token0 == c.Token1 {
		return fmt.Errorf("pool: identical tokens %s", c.Token0.Hex())
	}
	if c.Token1.Big().Cmp(c.Token0.Big()) < 0 {
		return fmt.Errorf("pool: tokens out of order: %s > %s", c.Token0.Hex(), c.Token1.Hex())
	}
	if c.Fee >= swapmath.FeeDenominator {
		return fmt.Errorf("pool: fee %d out of range", c.Fee)
	}
	if c.TickSpacing <= 0 || c.TickSpacing > tickmath.MaxTick {
		return fmt.Errorf("pool: tick spacing %d out of range", c.TickSpacing)
	}
	if c.Ledger == nil {
		return fmt.Errorf("pool: nil ledger")
	}
	return nil
}

// Pool is a single token-pair market. All methods are single-threaded: the
// locked flag rejects reentrant calls from settlement callbacks, and callers
// needing concurrency serialize externally.
type Pool struct {
	token0      common.Address
	token1      common.Address
	fee         uint32
	tickSpacing int32
	addr        common.Address

	maxLiquidityPerTick *uint256.Int

	ledger TokenLedger
	log    *zap.Logger
	now    func() uint32

	locked      bool
	initialized bool

	sqrtPriceX96         *uint256.Int
	tick                 int32
	liquidity            *uint256.Int
	feeGrowthGlobal0X128 *uint256.Int
	feeGrowthGlobal1X128 *uint256.Int

	ticks     tickLedger
	bitmap    tickBitmap
	positions positionLedger
	oracle    *oracle
}

// New builds an uninitialized pool. Initialize must set the starting price
// before any liquidity or swap operation.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = func() uint32 { return uint32(time.Now().Unix()) }
	}
	return &Pool{
		token0:               cfg.Token0,
		token1:               cfg.Token1,
		fee:                  cfg.Fee,
		tickSpacing:          cfg.TickSpacing,
		addr:                 cfg.Address,
		maxLiquidityPerTick:  tickmath.MaxLiquidityPerTick(cfg.TickSpacing),
		ledger:               cfg.Ledger,
		log:                  logger,
		now:                  now,
		sqrtPriceX96:         new(uint256.Int),
		liquidity:            new(uint256.Int),
		feeGrowthGlobal0X128: new(uint256.Int),
		feeGrowthGlobal1X128: new(uint256.Int),
		ticks:                make(tickLedger),
		bitmap:               make(tickBitmap),
		positions:            make(positionLedger),
		oracle:               newOracle(),
	}, nil
}

// Token0 returns the lower-addressed token of the pair.
func (p *Pool) Token0() common.Address { return p.token0 }

// Token1 returns the higher-addressed token of the pair.
func (p *Pool) Token1() common.Address { return p.token1 }

// Fee returns the swap fee in pips.
func (p *Pool) Fee() uint32 { return p.fee }

// TickSpacing returns the tick granularity for position boundaries.
func (p *Pool) TickSpacing() int32 { return p.tickSpacing }

// Address returns the pool's holder address in the ledger.
func (p *Pool) Address() common.Address { return p.addr }

// SqrtPriceX96 returns the current Q64.96 square-root price.
func (p *Pool) SqrtPriceX96() *uint256.Int { return new(uint256.Int).Set(p.sqrtPriceX96) }

// CurrentTick returns the tick the current price falls in.
func (p *Pool) CurrentTick() int32 { return p.tick }

// Liquidity returns the liquidity active at the current price.
func (p *Pool) Liquidity() *uint256.Int { return new(uint256.Int).Set(p.liquidity) }

// FeeGrowthGlobal returns the Q128.128 all-time fee growth per unit of
// liquidity for both tokens.
func (p *Pool) FeeGrowthGlobal() (*uint256.Int, *uint256.Int) {
	return new(uint256.Int).Set(p.feeGrowthGlobal0X128), new(uint256.Int).Set(p.feeGrowthGlobal1X128)
}

// Position returns a copy of the position for (owner, lowerTick, upperTick),
// or zero values if it does not exist.
func (p *Pool) Position(owner common.Address, lowerTick, upperTick int32) PositionInfo {
	if info, ok := p.positions[NewPositionKey(owner, lowerTick, upperTick)]; ok {
		return *info.clone()
	}
	return *newPositionInfo()
}

// Tick returns a copy of the ledger entry for tick, or zero values if the
// tick has never been a position boundary.
func (p *Pool) Tick(tick int32) TickInfo {
	if info, ok := p.ticks[tick]; ok {
		return *info.clone()
	}
	return *newTickInfo()
}

// Observe exposes the oracle: cumulative tick and seconds-per-liquidity at
// each secondsAgo before now.
func (p *Pool) Observe(secondsAgos []uint32) ([]int64, []*uint256.Int, error) {
	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	return p.oracle.observe(p.now(), secondsAgos, p.tick, p.liquidity)
}

// GrowObservations raises the oracle ring capacity.
func (p *Pool) GrowObservations(next uint16) uint16 {
	return p.oracle.grow(next)
}

// Initialize sets the starting price. It can only be called once and accepts
// prices in [MinSqrtRatio, MaxSqrtRatio).
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int) error {
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if sqrtPriceX96.Lt(tickmath.MinSqrtRatio) || !sqrtPriceX96.Lt(tickmath.MaxSqrtRatio) {
		return fmt.Errorf("%w: sqrt price %s outside price domain", ErrInvalidPriceLimit, sqrtPriceX96)
	}
	tick, err := tickmath.TickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return err
	}
	p.sqrtPriceX96 = new(uint256.Int).Set(sqrtPriceX96)
	p.tick = tick
	p.oracle.initialize(p.now())
	p.initialized = true
	p.log.Info("pool initialized",
		zap.String("token0", p.token0.Hex()),
		zap.String("token1", p.token1.Hex()),
		zap.Uint32("fee", p.fee),
		zap.Int32("tick", tick),
	)
	return nil
}

func (p *Pool) lock() error {
	if !p.initialized {
		return ErrNotInitialized
	}
	if p.locked {
		return ErrReentrant
	}
	p.locked = true
	return nil
}

func (p *Pool) unlock() { p.locked = false }

func checkTicks(lowerTick, upperTick int32) error {
	if lowerTick >= upperTick || lowerTick < tickmath.MinTick || upperTick > tickmath.MaxTick {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidTickRange, lowerTick, upperTick)
	}
	return nil
}

func (p *Pool) checkSpacing(tick int32) error {
	if tick%p.tickSpacing != 0 {
		return fmt.Errorf("%w: tick %d not a multiple of spacing %d", ErrInvalidTickRange, tick, p.tickSpacing)
	}
	return nil
}

// snapshot captures every mutable piece of pool state so a failed settlement
// can roll back as if the operation never happened.
type snapshot struct {
	sqrtPriceX96         *uint256.Int
	tick                 int32
	liquidity            *uint256.Int
	feeGrowthGlobal0X128 *uint256.Int
	feeGrowthGlobal1X128 *uint256.Int
	ticks                tickLedger
	bitmap               tickBitmap
	positions            positionLedger
	oracle               *oracle
}

func (p *Pool) snapshot() *snapshot {
	return &snapshot{
		sqrtPriceX96:         new(uint256.Int).Set(p.sqrtPriceX96),
		tick:                 p.tick,
		liquidity:            new(uint256.Int).Set(p.liquidity),
		feeGrowthGlobal0X128: new(uint256.Int).Set(p.feeGrowthGlobal0X128),
		feeGrowthGlobal1X128: new(uint256.Int).Set(p.feeGrowthGlobal1X128),
		ticks:                p.ticks.clone(),
		bitmap:               p.bitmap.clone(),
		positions:            p.positions.clone(),
		oracle:               p.oracle.clone(),
	}
}

func (p *Pool) restore(s *snapshot) {
	p.sqrtPriceX96 = s.sqrtPriceX96
	p.tick = s.tick
	p.liquidity = s.liquidity
	p.feeGrowthGlobal0X128 = s.feeGrowthGlobal0X128
	p.feeGrowthGlobal1X128 = s.feeGrowthGlobal1X128
	p.ticks = s.ticks
	p.bitmap = s.bitmap
	p.positions = s.positions
	p.oracle = s.oracle
}

// Mint adds liquidity to [lowerTick, upperTick) for owner. The token amounts
// owed are computed first, then cb must deliver them; if the pool's balances
// do not cover the debt the whole mint is rolled back.
func (p *Pool) Mint(owner common.Address, lowerTick, upperTick int32, amount *uint256.Int, cb MintCallback, data []byte) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if amount == nil || amount.IsZero() {
		return nil, nil, ErrZeroLiquidity
	}

	prior := p.snapshot()
	_, amount0Signed, amount1Signed, err := p.modifyPosition(owner, lowerTick, upperTick, amount.ToBig())
	if err != nil {
		p.restore(prior)
		return nil, nil, err
	}
	amount0, _ := uint256.FromBig(amount0Signed)
	amount1, _ := uint256.FromBig(amount1Signed)

	balance0Before := p.ledger.BalanceOf(p.token0, p.addr)
	balance1Before := p.ledger.BalanceOf(p.token1, p.addr)
	if err := cb.PayMint(amount0, amount1, data); err != nil {
		p.restore(prior)
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientInput, err)
	}
	if !p.paid(p.token0, balance0Before, amount0) || !p.paid(p.token1, balance1Before, amount1) {
		p.restore(prior)
		return nil, nil, ErrInsufficientInput
	}

	p.log.Debug("mint",
		zap.String("owner", owner.Hex()),
		zap.Int32("lowerTick", lowerTick),
		zap.Int32("upperTick", upperTick),
		zap.String("liquidity", amount.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

func (p *Pool) paid(token common.Address, balanceBefore, owed *uint256.Int) bool {
	required := new(uint256.Int).Add(balanceBefore, owed)
	return !p.ledger.BalanceOf(token, p.addr).Lt(required)
}

// Burn removes liquidity from owner's position. The freed token amounts are
// credited to the position's TokensOwed balances rather than transferred;
// Collect withdraws them. Burning zero is a poke that settles pending fees.
func (p *Pool) Burn(owner common.Address, lowerTick, upperTick int32, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	delta := new(big.Int).Neg(amount.ToBig())
	prior := p.snapshot()
	position, amount0Signed, amount1Signed, err := p.modifyPosition(owner, lowerTick, upperTick, delta)
	if err != nil {
		p.restore(prior)
		return nil, nil, err
	}

	amount0, _ := uint256.FromBig(new(big.Int).Neg(amount0Signed))
	amount1, _ := uint256.FromBig(new(big.Int).Neg(amount1Signed))
	position.TokensOwed0.Add(position.TokensOwed0, amount0)
	position.TokensOwed1.Add(position.TokensOwed1, amount1)

	p.log.Debug("burn",
		zap.String("owner", owner.Hex()),
		zap.Int32("lowerTick", lowerTick),
		zap.Int32("upperTick", upperTick),
		zap.String("liquidity", amount.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// Collect transfers up to the requested amounts of owner's accumulated
// TokensOwed balances to recipient. It never touches liquidity; callers burn
// (or poke with a zero burn) first to settle fees into TokensOwed.
func (p *Pool) Collect(owner, recipient common.Address, lowerTick, upperTick int32, amount0Requested, amount1Requested *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	position, ok := p.positions[NewPositionKey(owner, lowerTick, upperTick)]
	if !ok {
		return new(uint256.Int), new(uint256.Int), nil
	}

	amount0 := new(uint256.Int).Set(amount0Requested)
	if amount0.Gt(position.TokensOwed0) {
		amount0.Set(position.TokensOwed0)
	}
	amount1 := new(uint256.Int).Set(amount1Requested)
	if amount1.Gt(position.TokensOwed1) {
		amount1.Set(position.TokensOwed1)
	}

	if !amount0.IsZero() {
		if err := p.ledger.Transfer(p.token0, p.addr, recipient, amount0); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		position.TokensOwed0.Sub(position.TokensOwed0, amount0)
	}
	if !amount1.IsZero() {
		if err := p.ledger.Transfer(p.token1, p.addr, recipient, amount1); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		position.TokensOwed1.Sub(position.TokensOwed1, amount1)
	}

	p.log.Debug("collect",
		zap.String("owner", owner.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// Flash lends amount0 and amount1 to recipient for the duration of the
// callback. The callback must return principal plus fee; fees are folded
// into the fee growth accumulators for active liquidity.
func (p *Pool) Flash(recipient common.Address, amount0, amount1 *uint256.Int, cb FlashCallback, data []byte) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	feeRate := uint256.NewInt(uint64(p.fee))
	feeBase := uint256.NewInt(swapmath.FeeDenominator)
	fee0, err := fixedpoint.MulDivRoundingUp(amount0, feeRate, feeBase)
	if err != nil {
		return err
	}
	fee1, err := fixedpoint.MulDivRoundingUp(amount1, feeRate, feeBase)
	if err != nil {
		return err
	}

	balance0Before := p.ledger.BalanceOf(p.token0, p.addr)
	balance1Before := p.ledger.BalanceOf(p.token1, p.addr)

	if !amount0.IsZero() {
		if err := p.ledger.Transfer(p.token0, p.addr, recipient, amount0); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if !amount1.IsZero() {
		if err := p.ledger.Transfer(p.token1, p.addr, recipient, amount1); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	cbErr := cb.RepayFlash(fee0, fee1, data)

	balance0After := p.ledger.BalanceOf(p.token0, p.addr)
	balance1After := p.ledger.BalanceOf(p.token1, p.addr)
	required0 := new(uint256.Int).Add(balance0Before, fee0)
	required1 := new(uint256.Int).Add(balance1Before, fee1)
	if cbErr != nil || balance0After.Lt(required0) || balance1After.Lt(required1) {
		// Claw back whatever the callback returned short of principal
		// plus fee so the reserves end where they started.
		if err := p.clawBack(p.token0, recipient, balance0Before, balance0After); err != nil {
			return fmt.Errorf("%w (clawback failed: %v)", ErrFlashLoanNotPaid, err)
		}
		if err := p.clawBack(p.token1, recipient, balance1Before, balance1After); err != nil {
			return fmt.Errorf("%w (clawback failed: %v)", ErrFlashLoanNotPaid, err)
		}
		if cbErr != nil {
			return fmt.Errorf("%w: %v", ErrFlashLoanNotPaid, cbErr)
		}
		return ErrFlashLoanNotPaid
	}

	paid0 := new(uint256.Int).Sub(balance0After, balance0Before)
	paid1 := new(uint256.Int).Sub(balance1After, balance1Before)
	if !p.liquidity.IsZero() {
		if !paid0.IsZero() {
			growth, err := fixedpoint.MulDiv(paid0, fixedpoint.Q128, p.liquidity)
			if err != nil {
				return err
			}
			p.feeGrowthGlobal0X128.Add(p.feeGrowthGlobal0X128, growth)
		}
		if !paid1.IsZero() {
			growth, err := fixedpoint.MulDiv(paid1, fixedpoint.Q128, p.liquidity)
			if err != nil {
				return err
			}
			p.feeGrowthGlobal1X128.Add(p.feeGrowthGlobal1X128, growth)
		}
	}

	p.log.Debug("flash",
		zap.String("recipient", recipient.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("paid0", paid0.Dec()),
		zap.String("paid1", paid1.Dec()),
	)
	return nil
}

// clawBack recovers a failed flash loan's missing balance from recipient.
func (p *Pool) clawBack(tok common.Address, recipient common.Address, before, after *uint256.Int) error {
	if !after.Lt(before) {
		return nil
	}
	missing := new(uint256.Int).Sub(before, after)
	return p.ledger.Transfer(tok, recipient, p.addr, missing)
}

// modifyPosition is the shared mint/burn path: it updates the position and
// both boundary ticks, then prices the liquidity delta into signed token
// amounts depending on where the current price sits relative to the range.
func (p *Pool) modifyPosition(owner common.Address, lowerTick, upperTick int32, liquidityDelta *big.Int) (*PositionInfo, *big.Int, *big.Int, error) {
	if err := checkTicks(lowerTick, upperTick); err != nil {
		return nil, nil, nil, err
	}
	if err := p.checkSpacing(lowerTick); err != nil {
		return nil, nil, nil, err
	}
	if err := p.checkSpacing(upperTick); err != nil {
		return nil, nil, nil, err
	}

	position, err := p.updatePosition(owner, lowerTick, upperTick, liquidityDelta)
	if err != nil {
		return nil, nil, nil, err
	}

	amount0 := new(big.Int)
	amount1 := new(big.Int)
	if liquidityDelta.Sign() != 0 {
		sqrtRatioLower, err := tickmath.SqrtRatioAtTick(lowerTick)
		if err != nil {
			return nil, nil, nil, err
		}
		sqrtRatioUpper, err := tickmath.SqrtRatioAtTick(upperTick)
		if err != nil {
			return nil, nil, nil, err
		}

		switch {
		case p.tick < lowerTick:
			// Entirely above the current price: token0 only.
			amount0, err = swapmath.Amount0DeltaSigned(sqrtRatioLower, sqrtRatioUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		case p.tick < upperTick:
			// Straddles the current price: both tokens, and the
			// active liquidity changes.
			amount0, err = swapmath.Amount0DeltaSigned(p.sqrtPriceX96, sqrtRatioUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
			amount1, err = swapmath.Amount1DeltaSigned(sqrtRatioLower, p.sqrtPriceX96, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
			p.oracle.write(p.now(), p.tick, p.liquidity)
			p.liquidity, err = fixedpoint.AddLiquidityDelta(p.liquidity, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		default:
			// Entirely below the current price: token1 only.
			amount1, err = swapmath.Amount1DeltaSigned(sqrtRatioLower, sqrtRatioUpper, liquidityDelta)
			if err != nil {
				return nil, nil, nil, err
			}
		}
	}
	return position, amount0, amount1, nil
}

// updatePosition applies the liquidity delta to the boundary ticks and the
// position, flipping bitmap bits and clearing emptied ticks as needed.
func (p *Pool) updatePosition(owner common.Address, lowerTick, upperTick int32, liquidityDelta *big.Int) (*PositionInfo, error) {
	position := p.positions.get(NewPositionKey(owner, lowerTick, upperTick))

	var flippedLower, flippedUpper bool
	if liquidityDelta.Sign() != 0 {
		var err error
		flippedLower, err = p.ticks.update(lowerTick, p.tick, liquidityDelta,
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, false, p.maxLiquidityPerTick)
		if err != nil {
			return nil, err
		}
		flippedUpper, err = p.ticks.update(upperTick, p.tick, liquidityDelta,
			p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128, true, p.maxLiquidityPerTick)
		if err != nil {
			return nil, err
		}
		if flippedLower {
			p.bitmap.flip(lowerTick, p.tickSpacing)
		}
		if flippedUpper {
			p.bitmap.flip(upperTick, p.tickSpacing)
		}
	}

	feeGrowthInside0, feeGrowthInside1 := p.ticks.feeGrowthInside(
		lowerTick, upperTick, p.tick, p.feeGrowthGlobal0X128, p.feeGrowthGlobal1X128)
	if err := position.update(liquidityDelta, feeGrowthInside0, feeGrowthInside1); err != nil {
		return nil, err
	}

	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			p.ticks.clear(lowerTick)
		}
		if flippedUpper {
			p.ticks.clear(upperTick)
		}
	}
	return position, nil
}
