package pool

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOracleUninitialized reports an observation query against a pool whose
// oracle has no written observations yet.
var ErrOracleUninitialized = errors.New("pool: oracle not initialized")

// ErrOracleTargetTooOld reports a secondsAgo older than the oldest stored
// observation.
var ErrOracleTargetTooOld = errors.New("pool: observation target predates oldest observation")

// Observation is one entry of the price oracle ring buffer: cumulative tick
// and cumulative seconds-per-liquidity as of BlockTimestamp.
type Observation struct {
	BlockTimestamp                    uint32
	TickCumulative                    int64
	SecondsPerLiquidityCumulativeX128 *uint256.Int
	Initialized                       bool
}

func (o Observation) clone() Observation {
	c := o
	c.SecondsPerLiquidityCumulativeX128 = new(uint256.Int).Set(o.SecondsPerLiquidityCumulativeX128)
	return c
}

// transform rolls an observation forward to time, accumulating the tick and
// the per-liquidity time elapsed since the last write.
func (o Observation) transform(time uint32, tick int32, liquidity *uint256.Int) Observation {
	delta := time - o.BlockTimestamp
	liq := liquidity
	if liq.IsZero() {
		liq = uint256.NewInt(1)
	}
	spl := new(uint256.Int).Lsh(uint256.NewInt(uint64(delta)), 128)
	spl.Div(spl, liq)
	spl.Add(spl, o.SecondsPerLiquidityCumulativeX128)
	return Observation{
		BlockTimestamp:                    time,
		TickCumulative:                    o.TickCumulative + int64(tick)*int64(delta),
		SecondsPerLiquidityCumulativeX128: spl,
		Initialized:                       true,
	}
}

// oracle is a grow-on-demand ring buffer of observations. cardinality is the
// populated length; cardinalityNext is the target length that writes grow
// into one slot at a time.
type oracle struct {
	observations    []Observation
	index           uint16
	cardinality     uint16
	cardinalityNext uint16
}

func newOracle() *oracle {
	return &oracle{}
}

func (o *oracle) clone() *oracle {
	out := &oracle{
		observations:    make([]Observation, len(o.observations)),
		index:           o.index,
		cardinality:     o.cardinality,
		cardinalityNext: o.cardinalityNext,
	}
	for i, obs := range o.observations {
		out.observations[i] = obs.clone()
	}
	return out
}

func (o *oracle) initialize(time uint32) {
	o.observations = []Observation{{
		BlockTimestamp:                    time,
		SecondsPerLiquidityCumulativeX128: new(uint256.Int),
		Initialized:                       true,
	}}
	o.index = 0
	o.cardinality = 1
	o.cardinalityNext = 1
}

// write records a new observation if time has advanced past the last one.
// At most one observation is stored per timestamp.
func (o *oracle) write(time uint32, tick int32, liquidity *uint256.Int) {
	last := o.observations[o.index]
	if last.BlockTimestamp == time {
		return
	}

	cardinality := o.cardinality
	if o.cardinalityNext > cardinality && o.index == cardinality-1 {
		cardinality = o.cardinalityNext
	}

	next := (o.index + 1) % cardinality
	updated := last.transform(time, tick, liquidity)
	if int(next) < len(o.observations) {
		o.observations[next] = updated
	} else {
		o.observations = append(o.observations, updated)
	}
	o.index = next
	o.cardinality = cardinality
}

// grow raises the target ring size. Existing observations are untouched;
// new slots are claimed lazily by write.
func (o *oracle) grow(next uint16) uint16 {
	if next <= o.cardinalityNext {
		return o.cardinalityNext
	}
	o.cardinalityNext = next
	return next
}

// observe returns the cumulative tick and seconds-per-liquidity values at
// each of the given secondsAgos before time, interpolating between stored
// observations where needed. secondsAgo zero means now.
func (o *oracle) observe(time uint32, secondsAgos []uint32, tick int32, liquidity *uint256.Int) ([]int64, []*uint256.Int, error) {
	if o.cardinality == 0 {
		return nil, nil, ErrOracleUninitialized
	}
	tickCumulatives := make([]int64, len(secondsAgos))
	secondsPerLiquidity := make([]*uint256.Int, len(secondsAgos))
	for i, secondsAgo := range secondsAgos {
		tc, spl, err := o.observeSingle(time, secondsAgo, tick, liquidity)
		if err != nil {
			return nil, nil, err
		}
		tickCumulatives[i] = tc
		secondsPerLiquidity[i] = spl
	}
	return tickCumulatives, secondsPerLiquidity, nil
}

func (o *oracle) observeSingle(time, secondsAgo uint32, tick int32, liquidity *uint256.Int) (int64, *uint256.Int, error) {
	if secondsAgo == 0 {
		last := o.observations[o.index]
		if last.BlockTimestamp != time {
			last = last.transform(time, tick, liquidity)
		}
		return last.TickCumulative, new(uint256.Int).Set(last.SecondsPerLiquidityCumulativeX128), nil
	}

	target := time - secondsAgo
	before, after, err := o.surroundingObservations(target, time, tick, liquidity)
	if err != nil {
		return 0, nil, err
	}

	switch {
	case before.BlockTimestamp == target:
		return before.TickCumulative, new(uint256.Int).Set(before.SecondsPerLiquidityCumulativeX128), nil
	case after.BlockTimestamp == target:
		return after.TickCumulative, new(uint256.Int).Set(after.SecondsPerLiquidityCumulativeX128), nil
	default:
		// Linear interpolation between the surrounding observations.
		span := uint64(after.BlockTimestamp - before.BlockTimestamp)
		elapsed := uint64(target - before.BlockTimestamp)
		tc := before.TickCumulative +
			(after.TickCumulative-before.TickCumulative)/int64(span)*int64(elapsed)
		splDelta := new(uint256.Int).Sub(after.SecondsPerLiquidityCumulativeX128, before.SecondsPerLiquidityCumulativeX128)
		splDelta.Mul(splDelta, uint256.NewInt(elapsed))
		splDelta.Div(splDelta, uint256.NewInt(span))
		spl := new(uint256.Int).Add(before.SecondsPerLiquidityCumulativeX128, splDelta)
		return tc, spl, nil
	}
}

// surroundingObservations finds the stored (or synthesized) observations
// bracketing target.
func (o *oracle) surroundingObservations(target, time uint32, tick int32, liquidity *uint256.Int) (Observation, Observation, error) {
	before := o.observations[o.index]
	if before.BlockTimestamp <= target {
		if before.BlockTimestamp == target {
			return before, before, nil
		}
		return before, before.transform(time, tick, liquidity), nil
	}

	oldest := o.observationAt(int(o.index+1) % int(o.cardinality))
	if !oldest.Initialized {
		oldest = o.observations[0]
	}
	if target < oldest.BlockTimestamp {
		return Observation{}, Observation{}, ErrOracleTargetTooOld
	}
	return o.binarySearch(target)
}

// observationAt reads a ring slot, treating slots the ring has grown into
// but not yet written as uninitialized.
func (o *oracle) observationAt(i int) Observation {
	if i < len(o.observations) {
		return o.observations[i]
	}
	return Observation{}
}

func (o *oracle) binarySearch(target uint32) (Observation, Observation, error) {
	l := (int(o.index) + 1) % int(o.cardinality)
	r := l + int(o.cardinality) - 1
	for {
		i := (l + r) / 2
		before := o.observationAt(i % int(o.cardinality))
		if !before.Initialized {
			l = i + 1
			continue
		}
		after := o.observationAt((i + 1) % int(o.cardinality))
		if before.BlockTimestamp <= target && target <= after.BlockTimestamp {
			return before, after, nil
		}
		if before.BlockTimestamp > target {
			r = i - 1
		} else {
			l = i + 1
		}
	}
}
