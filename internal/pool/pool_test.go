package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/token"
)

var (
	testToken0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testToken1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testPool   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// Values from a 1 ETH / 5000 USDC pool: price 5000 sits at tick 85176,
// liquidity 1517882343751509868544 over [84222, 86129].
var (
	bookSqrtPrice = uint256.MustFromDecimal("5602277097478614198912276234240")
	bookLiquidity = uint256.MustFromDecimal("1517882343751509868544")
)

const (
	bookLowerTick int32 = 84222
	bookUpperTick int32 = 86129
)

type payMintFunc func(amount0, amount1 *uint256.Int, data []byte) error

func (f payMintFunc) PayMint(amount0, amount1 *uint256.Int, data []byte) error {
	return f(amount0, amount1, data)
}

type paySwapFunc func(amount0, amount1 *big.Int, data []byte) error

func (f paySwapFunc) PaySwap(amount0, amount1 *big.Int, data []byte) error {
	return f(amount0, amount1, data)
}

type repayFlashFunc func(fee0, fee1 *uint256.Int, data []byte) error

func (f repayFlashFunc) RepayFlash(fee0, fee1 *uint256.Int, data []byte) error {
	return f(fee0, fee1, data)
}

type testClock struct{ now uint32 }

func (c *testClock) advance(seconds uint32) { c.now += seconds }

func newTestPool(t *testing.T, fee uint32, tickSpacing int32) (*Pool, *token.Ledger, *testClock) {
	t.Helper()
	ledger := token.NewLedger()
	clock := &testClock{now: 1}
	p, err := New(Config{
		Token0:      testToken0,
		Token1:      testToken1,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Address:     testPool,
		Ledger:      ledger,
		Now:         func() uint32 { return clock.now },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	funding := new(uint256.Int).Lsh(uint256.NewInt(1), 160)
	for _, holder := range []common.Address{alice, bob} {
		for _, tok := range []common.Address{testToken0, testToken1} {
			if err := ledger.Mint(tok, holder, funding); err != nil {
				t.Fatalf("fund %s: %v", holder.Hex(), err)
			}
		}
	}
	return p, ledger, clock
}

func payingMintCallback(ledger *token.Ledger, payer common.Address, p *Pool) MintCallback {
	return payMintFunc(func(amount0, amount1 *uint256.Int, _ []byte) error {
		if err := ledger.Transfer(p.Token0(), payer, p.Address(), amount0); err != nil {
			return err
		}
		return ledger.Transfer(p.Token1(), payer, p.Address(), amount1)
	})
}

func payingSwapCallback(ledger *token.Ledger, payer common.Address, p *Pool) SwapCallback {
	return paySwapFunc(func(amount0, amount1 *big.Int, _ []byte) error {
		if amount0.Sign() > 0 {
			owed, _ := uint256.FromBig(amount0)
			return ledger.Transfer(p.Token0(), payer, p.Address(), owed)
		}
		if amount1.Sign() > 0 {
			owed, _ := uint256.FromBig(amount1)
			return ledger.Transfer(p.Token1(), payer, p.Address(), owed)
		}
		return nil
	})
}

func mustMintBook(t *testing.T, p *Pool, ledger *token.Ledger) (*uint256.Int, *uint256.Int) {
	t.Helper()
	amount0, amount1, err := p.Mint(alice, bookLowerTick, bookUpperTick, bookLiquidity,
		payingMintCallback(ledger, alice, p), nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	return amount0, amount1
}

func TestConfigValidate(t *testing.T) {
	ledger := token.NewLedger()
	base := Config{
		Token0: testToken0, Token1: testToken1,
		Fee: 3000, TickSpacing: 60, Address: testPool, Ledger: ledger,
	}

	if _, err := New(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := base
	bad.Token1 = base.Token0
	if _, err := New(bad); err == nil {
		t.Fatal("identical tokens accepted")
	}

	bad = base
	bad.Token0, bad.Token1 = base.Token1, base.Token0
	if _, err := New(bad); err == nil {
		t.Fatal("unsorted tokens accepted")
	}

	bad = base
	bad.Fee = 1_000_000
	if _, err := New(bad); err == nil {
		t.Fatal("fee of 100% accepted")
	}

	bad = base
	bad.TickSpacing = 0
	if _, err := New(bad); err == nil {
		t.Fatal("zero tick spacing accepted")
	}

	bad = base
	bad.Ledger = nil
	if _, err := New(bad); err == nil {
		t.Fatal("nil ledger accepted")
	}
}

func TestInitialize(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)

	// Everything is rejected before Initialize.
	if _, _, err := p.Mint(alice, bookLowerTick, bookUpperTick, bookLiquidity,
		payingMintCallback(ledger, alice, p), nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	if err := p.Initialize(uint256.NewInt(1)); !errors.Is(err, ErrInvalidPriceLimit) {
		t.Fatalf("expected ErrInvalidPriceLimit below domain, got %v", err)
	}

	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if got := p.CurrentTick(); got != 85176 {
		t.Fatalf("tick after initialize = %d, want 85176", got)
	}
	if !p.SqrtPriceX96().Eq(bookSqrtPrice) {
		t.Fatalf("sqrt price = %s", p.SqrtPriceX96().Dec())
	}

	if err := p.Initialize(bookSqrtPrice); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestMint(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	amount0, amount1 := mustMintBook(t, p, ledger)
	if amount0.Dec() != "998628802115141959" {
		t.Fatalf("amount0 = %s, want 998628802115141959", amount0.Dec())
	}
	if amount1.Dec() != "5000209190920489524100" {
		t.Fatalf("amount1 = %s, want 5000209190920489524100", amount1.Dec())
	}

	if !p.Liquidity().Eq(bookLiquidity) {
		t.Fatalf("active liquidity = %s", p.Liquidity().Dec())
	}
	position := p.Position(alice, bookLowerTick, bookUpperTick)
	if !position.Liquidity.Eq(bookLiquidity) {
		t.Fatalf("position liquidity = %s", position.Liquidity.Dec())
	}
	if !p.Tick(bookLowerTick).Initialized || !p.Tick(bookUpperTick).Initialized {
		t.Fatal("boundary ticks not initialized")
	}
	if got := p.Tick(bookUpperTick).LiquidityNet; got.Sign() >= 0 {
		t.Fatalf("upper tick net = %s, want negative", got)
	}

	// The pool holds exactly what the mint charged.
	if got := ledger.BalanceOf(testToken0, testPool); !got.Eq(amount0) {
		t.Fatalf("pool token0 balance = %s", got.Dec())
	}
	if got := ledger.BalanceOf(testToken1, testPool); !got.Eq(amount1) {
		t.Fatalf("pool token1 balance = %s", got.Dec())
	}

	// Minting the same range again extends the position.
	mustMintBook(t, p, ledger)
	position = p.Position(alice, bookLowerTick, bookUpperTick)
	doubled := new(uint256.Int).Add(bookLiquidity, bookLiquidity)
	if !position.Liquidity.Eq(doubled) {
		t.Fatalf("extended position liquidity = %s", position.Liquidity.Dec())
	}
}

func TestMintValidation(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 60)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	cb := payingMintCallback(ledger, alice, p)

	if _, _, err := p.Mint(alice, 120, 60, uint256.NewInt(1), cb, nil); !errors.Is(err, ErrInvalidTickRange) {
		t.Fatalf("inverted range: got %v", err)
	}
	if _, _, err := p.Mint(alice, -887280, 60, uint256.NewInt(1), cb, nil); !errors.Is(err, ErrInvalidTickRange) {
		t.Fatalf("below domain: got %v", err)
	}
	if _, _, err := p.Mint(alice, 61, 120, uint256.NewInt(1), cb, nil); !errors.Is(err, ErrInvalidTickRange) {
		t.Fatalf("off-spacing tick: got %v", err)
	}
	if _, _, err := p.Mint(alice, 60, 120, new(uint256.Int), cb, nil); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("zero liquidity: got %v", err)
	}
}

func TestMintUnderpaymentRollsBack(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	shortPay := payMintFunc(func(amount0, amount1 *uint256.Int, _ []byte) error {
		half := new(uint256.Int).Rsh(amount0, 1)
		return ledger.Transfer(p.Token0(), alice, p.Address(), half)
	})
	_, _, err := p.Mint(alice, bookLowerTick, bookUpperTick, bookLiquidity, shortPay, nil)
	if !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}

	if !p.Liquidity().IsZero() {
		t.Fatalf("liquidity after failed mint = %s", p.Liquidity().Dec())
	}
	if position := p.Position(alice, bookLowerTick, bookUpperTick); !position.Liquidity.IsZero() {
		t.Fatal("position survived failed mint")
	}
	if p.Tick(bookLowerTick).Initialized {
		t.Fatal("tick survived failed mint")
	}
}

func TestSwapExactInputZeroFee(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	bobToken0Before := ledger.BalanceOf(testToken0, bob)
	amountIn := uint256.MustFromDecimal("42000000000000000000")
	amount0, amount1, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	if amount1.String() != "42000000000000000000" {
		t.Fatalf("amount1 = %s, want 42000000000000000000", amount1)
	}
	if amount0.String() != "-8396714242162444" {
		t.Fatalf("amount0 = %s, want -8396714242162444", amount0)
	}
	if got := p.SqrtPriceX96().Dec(); got != "5604469350942327889444743441197" {
		t.Fatalf("price after swap = %s", got)
	}
	if got := p.CurrentTick(); got != 85184 {
		t.Fatalf("tick after swap = %d, want 85184", got)
	}

	received := new(uint256.Int).Sub(ledger.BalanceOf(testToken0, bob), bobToken0Before)
	if received.Dec() != "8396714242162444" {
		t.Fatalf("recipient received %s token0", received.Dec())
	}
}

func TestSwapFeeAccrualAndCollect(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	amountIn := uint256.MustFromDecimal("42000000000000000000")
	amount0, amount1, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if amount0.String() != "-8371533923304957" {
		t.Fatalf("amount0 = %s", amount0)
	}
	if amount1.String() != "42000000000000000000" {
		t.Fatalf("amount1 = %s", amount1)
	}

	_, fg1 := p.FeeGrowthGlobal()
	if fg1.Dec() != "28246970793579070633234440230622729" {
		t.Fatalf("feeGrowthGlobal1 = %s", fg1.Dec())
	}

	// A zero burn pokes the position, settling fees into TokensOwed.
	if _, _, err := p.Burn(alice, bookLowerTick, bookUpperTick, new(uint256.Int)); err != nil {
		t.Fatalf("poke failed: %v", err)
	}
	position := p.Position(alice, bookLowerTick, bookUpperTick)
	if position.TokensOwed1.Dec() != "125999999999999999" {
		t.Fatalf("fees owed = %s, want 125999999999999999", position.TokensOwed1.Dec())
	}
	if !position.TokensOwed0.IsZero() {
		t.Fatalf("token0 fees owed = %s, want 0", position.TokensOwed0.Dec())
	}

	max := new(uint256.Int).Not(new(uint256.Int))
	collected0, collected1, err := p.Collect(alice, bob, bookLowerTick, bookUpperTick, max, max)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !collected0.IsZero() || collected1.Dec() != "125999999999999999" {
		t.Fatalf("collected %s/%s", collected0.Dec(), collected1.Dec())
	}

	// Nothing left to collect.
	collected0, collected1, err = p.Collect(alice, bob, bookLowerTick, bookUpperTick, max, max)
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if !collected0.IsZero() || !collected1.IsZero() {
		t.Fatalf("second collect got %s/%s, want 0/0", collected0.Dec(), collected1.Dec())
	}
}

func TestSwapCrossesInitializedTick(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	// A second range starting where the first ends.
	upperLiquidity := uint256.MustFromDecimal("2000000000000000000000")
	if _, _, err := p.Mint(alice, bookUpperTick, 87000, upperLiquidity,
		payingMintCallback(ledger, alice, p), nil); err != nil {
		t.Fatalf("second mint failed: %v", err)
	}

	amountIn := uint256.MustFromDecimal("10000000000000000000000")
	amount0, amount1, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	if amount1.String() != "10000000000000000000000" {
		t.Fatalf("amount1 = %s", amount1)
	}
	// The loop fills word by word, rounding output down at each boundary.
	if amount0.String() != "-1837753164548692890" {
		t.Fatalf("amount0 = %s, want -1837753164548692890", amount0)
	}
	if got := p.SqrtPriceX96().Dec(); got != "6064309133242895189716658128297" {
		t.Fatalf("price after crossing = %s", got)
	}
	if got := p.CurrentTick(); got != 86761 {
		t.Fatalf("tick after crossing = %d, want 86761", got)
	}
	// Only the upper range is active now.
	if !p.Liquidity().Eq(upperLiquidity) {
		t.Fatalf("active liquidity = %s, want %s", p.Liquidity().Dec(), upperLiquidity.Dec())
	}
}

func TestSwapPriceLimit(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	// Limit on the wrong side of the current price.
	above := new(uint256.Int).AddUint64(bookSqrtPrice, 1)
	if _, _, err := p.Swap(bob, true, uint256.NewInt(1), above, payingSwapCallback(ledger, bob, p), nil); !errors.Is(err, ErrInvalidPriceLimit) {
		t.Fatalf("expected ErrInvalidPriceLimit, got %v", err)
	}

	// A tight limit stops the swap early with input unspent.
	limit := new(uint256.Int).SubUint64(bookSqrtPrice, 1_000_000)
	amountIn := uint256.MustFromDecimal("1000000000000000000")
	amount0, _, err := p.Swap(bob, true, amountIn, limit, payingSwapCallback(ledger, bob, p), nil)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if !p.SqrtPriceX96().Eq(limit) {
		t.Fatalf("price = %s, want limit %s", p.SqrtPriceX96().Dec(), limit.Dec())
	}
	if amount0.Cmp(amountIn.ToBig()) >= 0 {
		t.Fatalf("consumed %s, expected partial fill below %s", amount0, amountIn.Dec())
	}
}

func TestSwapValidation(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	cb := payingSwapCallback(ledger, bob, p)
	if _, _, err := p.Swap(bob, true, new(uint256.Int), nil, cb, nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, _, err := p.Swap(bob, true, nil, nil, cb, nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
}

func TestSwapNotEnoughLiquidity(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	priceBefore := p.SqrtPriceX96()
	tickBefore := p.CurrentTick()
	liquidityBefore := p.Liquidity()
	poolBalance1 := ledger.BalanceOf(testToken1, testPool)

	// Far more input than all positions can absorb.
	amountIn := uint256.MustFromDecimal("1000000000000000000000000000000")
	_, _, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil)
	if !errors.Is(err, ErrNotEnoughLiquidity) {
		t.Fatalf("expected ErrNotEnoughLiquidity, got %v", err)
	}

	// Hard stop: nothing moved.
	if !p.SqrtPriceX96().Eq(priceBefore) || p.CurrentTick() != tickBefore || !p.Liquidity().Eq(liquidityBefore) {
		t.Fatal("failed swap mutated pool state")
	}
	if got := ledger.BalanceOf(testToken1, testPool); !got.Eq(poolBalance1) {
		t.Fatal("failed swap moved balances")
	}
}

func TestSwapCallbackUnderpayRollsBack(t *testing.T) {
	p, ledger, _ := newTestPool(t, 0, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	priceBefore := p.SqrtPriceX96()
	poolBalance0 := ledger.BalanceOf(testToken0, testPool)
	bobBalance0 := ledger.BalanceOf(testToken0, bob)

	deadbeat := paySwapFunc(func(_, _ *big.Int, _ []byte) error { return nil })
	amountIn := uint256.MustFromDecimal("42000000000000000000")
	_, _, err := p.Swap(bob, false, amountIn, nil, deadbeat, nil)
	if !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}

	if !p.SqrtPriceX96().Eq(priceBefore) {
		t.Fatal("failed swap moved the price")
	}
	// The output sent ahead of settlement was clawed back.
	if got := ledger.BalanceOf(testToken0, testPool); !got.Eq(poolBalance0) {
		t.Fatalf("pool token0 = %s, want %s", got.Dec(), poolBalance0.Dec())
	}
	if got := ledger.BalanceOf(testToken0, bob); !got.Eq(bobBalance0) {
		t.Fatalf("bob token0 = %s, want %s", got.Dec(), bobBalance0.Dec())
	}
}

func TestBurnAndCollectFull(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	amount0, amount1, err := p.Burn(alice, bookLowerTick, bookUpperTick, bookLiquidity)
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	// Burns round down: one unit less than the mint charged.
	if amount0.Dec() != "998628802115141958" {
		t.Fatalf("burn amount0 = %s", amount0.Dec())
	}
	if amount1.Dec() != "5000209190920489524099" {
		t.Fatalf("burn amount1 = %s", amount1.Dec())
	}

	if !p.Liquidity().IsZero() {
		t.Fatal("liquidity not removed")
	}
	if p.Tick(bookLowerTick).Initialized || p.Tick(bookUpperTick).Initialized {
		t.Fatal("emptied ticks not cleared")
	}

	// Burning does not transfer; Collect does.
	if got := ledger.BalanceOf(testToken0, bob); !got.Eq(new(uint256.Int).Lsh(uint256.NewInt(1), 160)) {
		t.Fatalf("burn transferred tokens: bob has %s", got.Dec())
	}
	max := new(uint256.Int).Not(new(uint256.Int))
	collected0, collected1, err := p.Collect(alice, bob, bookLowerTick, bookUpperTick, max, max)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !collected0.Eq(amount0) || !collected1.Eq(amount1) {
		t.Fatalf("collected %s/%s, want %s/%s", collected0.Dec(), collected1.Dec(), amount0.Dec(), amount1.Dec())
	}

	// Poking a drained position is an error.
	if _, _, err := p.Burn(alice, bookLowerTick, bookUpperTick, new(uint256.Int)); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("expected ErrZeroLiquidity, got %v", err)
	}
}

func TestCollectPartial(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)
	if _, _, err := p.Burn(alice, bookLowerTick, bookUpperTick, bookLiquidity); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	part := uint256.MustFromDecimal("1000000")
	collected0, _, err := p.Collect(alice, bob, bookLowerTick, bookUpperTick, part, new(uint256.Int))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !collected0.Eq(part) {
		t.Fatalf("partial collect = %s, want %s", collected0.Dec(), part.Dec())
	}

	position := p.Position(alice, bookLowerTick, bookUpperTick)
	want := uint256.MustFromDecimal("998628802115141958")
	want.Sub(want, part)
	if !position.TokensOwed0.Eq(want) {
		t.Fatalf("remaining owed = %s, want %s", position.TokensOwed0.Dec(), want.Dec())
	}
}

func TestCollectUnknownPosition(t *testing.T) {
	p, _, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	max := new(uint256.Int).Not(new(uint256.Int))
	collected0, collected1, err := p.Collect(alice, bob, 0, 60, max, max)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !collected0.IsZero() || !collected1.IsZero() {
		t.Fatal("collected from a position that does not exist")
	}
}

func TestFlash(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	// Both principals sit below the pool's reserves (the mint deposited
	// roughly 0.9986 token0 and 5000 token1).
	amount0 := uint256.MustFromDecimal("500000000000000000")
	amount1 := uint256.MustFromDecimal("2000000000000000000")
	var seenFee0, seenFee1 *uint256.Int
	repay := repayFlashFunc(func(fee0, fee1 *uint256.Int, _ []byte) error {
		seenFee0 = new(uint256.Int).Set(fee0)
		seenFee1 = new(uint256.Int).Set(fee1)
		if err := ledger.Transfer(p.Token0(), bob, p.Address(), new(uint256.Int).Add(amount0, fee0)); err != nil {
			return err
		}
		return ledger.Transfer(p.Token1(), bob, p.Address(), new(uint256.Int).Add(amount1, fee1))
	})
	if err := p.Flash(bob, amount0, amount1, repay, nil); err != nil {
		t.Fatalf("Flash failed: %v", err)
	}

	if seenFee0.Dec() != "1500000000000000" {
		t.Fatalf("fee0 = %s", seenFee0.Dec())
	}
	if seenFee1.Dec() != "6000000000000000" {
		t.Fatalf("fee1 = %s", seenFee1.Dec())
	}

	fg0, fg1 := p.FeeGrowthGlobal()
	if fg0.Dec() != "336273461828322269443267145602651" {
		t.Fatalf("feeGrowthGlobal0 = %s", fg0.Dec())
	}
	if fg1.Dec() != "1345093847313289077773068582410606" {
		t.Fatalf("feeGrowthGlobal1 = %s", fg1.Dec())
	}
}

func TestFlashUnderpay(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	poolBalance0 := ledger.BalanceOf(testToken0, testPool)
	poolBalance1 := ledger.BalanceOf(testToken1, testPool)
	bobBalance0 := ledger.BalanceOf(testToken0, bob)
	amount0 := uint256.MustFromDecimal("500000000000000000")

	// Repays principal but not the fee.
	cheapskate := repayFlashFunc(func(_, _ *uint256.Int, _ []byte) error {
		return ledger.Transfer(p.Token0(), bob, p.Address(), amount0)
	})
	err := p.Flash(bob, amount0, new(uint256.Int), cheapskate, nil)
	if !errors.Is(err, ErrFlashLoanNotPaid) {
		t.Fatalf("expected ErrFlashLoanNotPaid, got %v", err)
	}

	// A failed flash leaves every balance exactly where it started.
	if got := ledger.BalanceOf(testToken0, testPool); !got.Eq(poolBalance0) {
		t.Fatalf("pool token0 = %s, want %s", got.Dec(), poolBalance0.Dec())
	}
	if got := ledger.BalanceOf(testToken1, testPool); !got.Eq(poolBalance1) {
		t.Fatalf("pool token1 = %s, want %s", got.Dec(), poolBalance1.Dec())
	}
	if got := ledger.BalanceOf(testToken0, bob); !got.Eq(bobBalance0) {
		t.Fatalf("recipient token0 = %s, want %s", got.Dec(), bobBalance0.Dec())
	}
	fg0, _ := p.FeeGrowthGlobal()
	if !fg0.IsZero() {
		t.Fatal("failed flash accrued fees")
	}
}

func TestReentrancy(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var inner error
	reentrant := payMintFunc(func(amount0, amount1 *uint256.Int, _ []byte) error {
		_, _, inner = p.Burn(alice, bookLowerTick, bookUpperTick, uint256.NewInt(1))
		if err := ledger.Transfer(p.Token0(), alice, p.Address(), amount0); err != nil {
			return err
		}
		return ledger.Transfer(p.Token1(), alice, p.Address(), amount1)
	})

	if _, _, err := p.Mint(alice, bookLowerTick, bookUpperTick, bookLiquidity, reentrant, nil); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if !errors.Is(inner, ErrReentrant) {
		t.Fatalf("expected inner ErrReentrant, got %v", inner)
	}
}

func TestQuoteDoesNotMutate(t *testing.T) {
	p, ledger, _ := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	mustMintBook(t, p, ledger)

	amountIn := uint256.MustFromDecimal("42000000000000000000")
	consumed, quoted, err := p.Quote(false, amountIn, nil)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !consumed.Eq(amountIn) {
		t.Fatalf("quote consumed %s", consumed.Dec())
	}
	if quoted.Dec() != "8371533923304957" {
		t.Fatalf("quoted out = %s", quoted.Dec())
	}
	if !p.SqrtPriceX96().Eq(bookSqrtPrice) {
		t.Fatal("quote moved the price")
	}

	// The real swap delivers exactly what the quote promised.
	amount0, _, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	wantOut := new(big.Int).Neg(quoted.ToBig())
	if amount0.Cmp(wantOut) != 0 {
		t.Fatalf("swap out %s, quote promised %s", amount0, wantOut)
	}
}

func TestObserveThroughPool(t *testing.T) {
	p, ledger, clock := newTestPool(t, 3000, 1)
	if err := p.Initialize(bookSqrtPrice); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	p.GrowObservations(4)
	mustMintBook(t, p, ledger)

	clock.advance(10)
	amountIn := uint256.MustFromDecimal("42000000000000000000")
	if _, _, err := p.Swap(bob, false, amountIn, nil, payingSwapCallback(ledger, bob, p), nil); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	clock.advance(10)

	// Looking back into a ring the oracle grew but has not fully written.
	tcs, _, err := p.Observe([]uint32{0, 15})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	// 85176 for the 10 seconds before the swap, 85183 for the 10 after.
	if want := int64(85176)*10 + int64(85183)*10; tcs[0] != want {
		t.Fatalf("tickCumulative = %d, want %d", tcs[0], want)
	}
	// 15s ago interpolates between the two stored observations.
	if want := int64(85176) * 5; tcs[1] != want {
		t.Fatalf("tickCumulative 15s ago = %d, want %d", tcs[1], want)
	}
}

func TestPositionKey(t *testing.T) {
	a := NewPositionKey(alice, -10, 10)
	if b := NewPositionKey(alice, -10, 10); a != b {
		t.Fatal("same inputs produced different keys")
	}
	if b := NewPositionKey(bob, -10, 10); a == b {
		t.Fatal("different owners collided")
	}
	if b := NewPositionKey(alice, -10, 20); a == b {
		t.Fatal("different ranges collided")
	}
}
