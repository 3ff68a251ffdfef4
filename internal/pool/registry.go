package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

var (
	// ErrPoolExists reports a CreatePool for a pair and fee tier that
	// already has a pool.
	ErrPoolExists = errors.New("pool: already exists")
	// ErrUnknownFeeTier reports a fee with no enabled tick spacing.
	ErrUnknownFeeTier = errors.New("pool: unknown fee tier")
	// ErrPoolNotFound reports a lookup for a pair and fee tier with no
	// pool.
	ErrPoolNotFound = errors.New("pool: not found")
)

// Registry creates and indexes pools, one per (token0, token1, fee). Pool
// holder addresses are derived from the pair and fee so reserves of
// different pools never collide in the ledger.
type Registry struct {
	ledger       TokenLedger
	log          *zap.Logger
	now          func() uint32
	pools        map[common.Address]*Pool
	tickSpacings map[uint32]int32
}

// NewRegistry builds a registry with the standard fee tiers enabled:
// 0.05% / 10, 0.3% / 60, 1% / 200.
func NewRegistry(ledger TokenLedger, logger *zap.Logger, now func() uint32) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ledger: ledger,
		log:    logger,
		now:    now,
		pools:  make(map[common.Address]*Pool),
		tickSpacings: map[uint32]int32{
			500:   10,
			3000:  60,
			10000: 200,
		},
	}
}

// EnableFeeTier registers an extra fee tier. Existing tiers cannot be
// changed.
func (r *Registry) EnableFeeTier(fee uint32, tickSpacing int32) error {
	if _, ok := r.tickSpacings[fee]; ok {
		return fmt.Errorf("pool: fee tier %d already enabled", fee)
	}
	if tickSpacing <= 0 {
		return fmt.Errorf("pool: invalid tick spacing %d", tickSpacing)
	}
	r.tickSpacings[fee] = tickSpacing
	return nil
}

// CreatePool instantiates the pool for the pair and fee tier. Token order
// does not matter; the lower address becomes token0.
func (r *Registry) CreatePool(tokenA, tokenB common.Address, fee uint32) (*Pool, error) {
	tickSpacing, ok := r.tickSpacings[fee]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFeeTier, fee)
	}
	token0, token1 := sortTokens(tokenA, tokenB)
	addr := PoolAddress(token0, token1, fee)
	if _, ok := r.pools[addr]; ok {
		return nil, fmt.Errorf("%w: %s/%s fee %d", ErrPoolExists, token0.Hex(), token1.Hex(), fee)
	}

	p, err := New(Config{
		Token0:      token0,
		Token1:      token1,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Address:     addr,
		Ledger:      r.ledger,
		Logger:      r.log,
		Now:         r.now,
	})
	if err != nil {
		return nil, err
	}
	r.pools[addr] = p
	r.log.Info("pool created",
		zap.String("pool", addr.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint32("fee", fee),
	)
	return p, nil
}

// Get returns the pool for the pair and fee tier.
func (r *Registry) Get(tokenA, tokenB common.Address, fee uint32) (*Pool, error) {
	token0, token1 := sortTokens(tokenA, tokenB)
	p, ok := r.pools[PoolAddress(token0, token1, fee)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, token0.Hex(), token1.Hex(), fee)
	}
	return p, nil
}

// Pools returns all pools ordered by address for deterministic iteration.
func (r *Registry) Pools() []*Pool {
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].addr.Big().Cmp(out[j].addr.Big()) < 0
	})
	return out
}

// PoolAddress derives the pool's holder address from the sorted pair and
// fee tier.
func PoolAddress(token0, token1 common.Address, fee uint32) common.Address {
	var buf [44]byte
	copy(buf[:20], token0.Bytes())
	copy(buf[20:40], token1.Bytes())
	binary.BigEndian.PutUint32(buf[40:], fee)
	sum := blake3.Sum256(buf[:])
	return common.BytesToAddress(sum[12:])
}

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if b.Big().Cmp(a.Big()) < 0 {
		return b, a
	}
	return a, b
}
