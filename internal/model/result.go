package model

// ResultRecord captures the outcome of one scenario operation.
type ResultRecord struct {
	Seq          uint64 `json:"seq"`
	Op           string `json:"op"`
	Pool         string `json:"pool,omitempty"`
	Actor        string `json:"actor,omitempty"`
	Amount0      string `json:"amount0,omitempty"`
	Amount1      string `json:"amount1,omitempty"`
	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`
	Tick         int32  `json:"tick,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	Price        string `json:"price,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PoolSnapshot is the externally visible pool state at a point in the
// scenario.
type PoolSnapshot struct {
	Seq                  uint64 `json:"seq"`
	Pool                 string `json:"pool"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Fee                  uint32 `json:"fee"`
	TickSpacing          int32  `json:"tick_spacing"`
	SqrtPriceX96         string `json:"sqrt_price_x96"`
	Tick                 int32  `json:"tick"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
	Price                string `json:"price"`
}

// SwapMetrics is the per-pool volume and fee aggregate over a scenario run.
type SwapMetrics struct {
	Pool    string `json:"pool"`
	Swaps   uint64 `json:"swaps"`
	Volume0 string `json:"volume0"`
	Volume1 string `json:"volume1"`
	Fees0   string `json:"fees0"`
	Fees1   string `json:"fees1"`
}
