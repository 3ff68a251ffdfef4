// Package model defines the JSON records the simulator reads and writes:
// scenario operations in, per-operation results and pool snapshots out.
package model

// Op names for ScenarioOp.
const (
	OpCreatePool = "create_pool"
	OpInitialize = "initialize"
	OpMint       = "mint"
	OpBurn       = "burn"
	OpCollect    = "collect"
	OpSwap       = "swap"
	OpFlash      = "flash"
	OpSnapshot   = "snapshot"
	OpAdvance    = "advance"
)

// ScenarioOp is one line of a scenario file. Fields are interpreted
// per-op; numeric token quantities are decimal strings so they survive
// JSON without precision loss.
type ScenarioOp struct {
	Op     string `json:"op"`
	Actor  string `json:"actor,omitempty"`
	TokenA string `json:"token_a,omitempty"`
	TokenB string `json:"token_b,omitempty"`
	Fee    uint32 `json:"fee,omitempty"`

	// initialize
	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`

	// mint / burn / collect
	LowerTick int32  `json:"lower_tick,omitempty"`
	UpperTick int32  `json:"upper_tick,omitempty"`
	Liquidity string `json:"liquidity,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// swap
	ZeroForOne        bool   `json:"zero_for_one,omitempty"`
	AmountIn          string `json:"amount_in,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrt_price_limit_x96,omitempty"`

	// collect / flash
	Amount0 string `json:"amount0,omitempty"`
	Amount1 string `json:"amount1,omitempty"`

	// advance: seconds to move the simulated clock forward
	Seconds uint32 `json:"seconds,omitempty"`
}
