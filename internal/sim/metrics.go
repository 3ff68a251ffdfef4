package sim

import (
	"math/big"
	"sort"

	"clamm/internal/model"
)

// Accumulator aggregates swap volume and fees for one pool over a run.
type Accumulator struct {
	Pool    string
	FeeRate uint32
	Swaps   uint64
	Volume0 *big.Int
	Volume1 *big.Int
	Fees0   *big.Int
	Fees1   *big.Int
}

func NewAccumulator(pool string, feeRate uint32) *Accumulator {
	return &Accumulator{
		Pool:    pool,
		FeeRate: feeRate,
		Volume0: big.NewInt(0),
		Volume1: big.NewInt(0),
		Fees0:   big.NewInt(0),
		Fees1:   big.NewInt(0),
	}
}

// AddSwap folds one settled swap into the aggregate. Amounts follow the
// pool sign convention: the positive side is the input and carries the fee.
func (a *Accumulator) AddSwap(amount0, amount1 *big.Int) {
	a.Swaps++
	absAdd(a.Volume0, amount0)
	absAdd(a.Volume1, amount1)
	if a.FeeRate == 0 {
		return
	}
	if amount0.Sign() > 0 {
		a.Fees0.Add(a.Fees0, feeFromAmount(amount0, a.FeeRate))
	} else if amount1.Sign() > 0 {
		a.Fees1.Add(a.Fees1, feeFromAmount(amount1, a.FeeRate))
	}
}

// Metrics renders the aggregate as a storage record.
func (a *Accumulator) Metrics() model.SwapMetrics {
	return model.SwapMetrics{
		Pool:    a.Pool,
		Swaps:   a.Swaps,
		Volume0: a.Volume0.String(),
		Volume1: a.Volume1.String(),
		Fees0:   a.Fees0.String(),
		Fees1:   a.Fees1.String(),
	}
}

// metricsSet keys accumulators by pool address.
type metricsSet map[string]*Accumulator

func (ms metricsSet) forPool(pool string, feeRate uint32) *Accumulator {
	if acc, ok := ms[pool]; ok {
		return acc
	}
	acc := NewAccumulator(pool, feeRate)
	ms[pool] = acc
	return acc
}

func (ms metricsSet) records() []model.SwapMetrics {
	keys := make([]string, 0, len(ms))
	for key := range ms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]model.SwapMetrics, 0, len(keys))
	for _, key := range keys {
		out = append(out, ms[key].Metrics())
	}
	return out
}

func absAdd(dst, v *big.Int) {
	if v.Sign() < 0 {
		dst.Sub(dst, v)
	} else {
		dst.Add(dst, v)
	}
}

// feeFromAmount recovers the fee from a fee-inclusive input amount:
// amount * rate / 1e6, rounded down.
func feeFromAmount(amount *big.Int, feeRate uint32) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(feeRate)))
	return fee.Div(fee, big.NewInt(1_000_000))
}
