// Package sim replays scenario files against an in-memory set of pools and
// records per-operation results, pool snapshots, and aggregate metrics.
package sim

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"clamm/internal/model"
	"clamm/internal/pool"
	"clamm/internal/storage"
	"clamm/internal/token"
)

// RunConfig holds runtime settings for the simulator.
type RunConfig struct {
	ScenarioPath  string
	StartTime     uint32
	SnapshotEvery uint64
	StopOnError   bool
	OracleSlots   uint16
}

// Runner replays a scenario against a fresh ledger and pool registry.
type Runner struct {
	cfg      RunConfig
	ledger   *token.Ledger
	registry *pool.Registry
	storage  storage.Storage
	logger   *zap.Logger

	clock   uint32
	seq     uint64
	funded  map[common.Address]map[common.Address]bool
	metrics metricsSet
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		ledger:  token.NewLedger(),
		storage: storageSink,
		logger:  logger,
		clock:   cfg.StartTime,
		funded:  make(map[common.Address]map[common.Address]bool),
		metrics: make(metricsSet),
	}
	r.registry = pool.NewRegistry(r.ledger, logger, func() uint32 { return r.clock })
	return r
}

// Ledger exposes the backing token ledger, mainly for tests and for balance
// inspection after a run.
func (r *Runner) Ledger() *token.Ledger { return r.ledger }

// Registry exposes the pool registry.
func (r *Runner) Registry() *pool.Registry { return r.registry }

// Run replays the scenario file line by line and flushes the collected
// output to storage.
func (r *Runner) Run(ctx context.Context) error {
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.ScenarioPath == "" {
		return fmt.Errorf("scenario path is required")
	}

	file, err := os.Open(r.cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()

	var results []model.ResultRecord
	var snapshots []model.PoolSnapshot

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var op model.ScenarioOp
		if err := json.Unmarshal(line, &op); err != nil {
			return fmt.Errorf("decode scenario line %d: %w", r.seq+1, err)
		}

		r.seq++
		r.clock++
		result, opErr := r.apply(&op)
		result.Seq = r.seq
		result.Op = op.Op
		result.Actor = op.Actor
		if opErr != nil {
			result.Error = opErr.Error()
			r.logger.Warn("operation failed",
				zap.Uint64("seq", r.seq),
				zap.String("op", op.Op),
				zap.Error(opErr),
			)
		}
		results = append(results, result)

		if op.Op == model.OpSnapshot ||
			(r.cfg.SnapshotEvery > 0 && r.seq%r.cfg.SnapshotEvery == 0) {
			snapshots = append(snapshots, r.snapshotAll()...)
		}

		if opErr != nil && r.cfg.StopOnError {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}

	if err := r.storage.PutResults(ctx, results); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	if err := r.storage.PutSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}
	if err := r.storage.PutMetrics(ctx, r.metrics.records()); err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}

	r.logger.Info("scenario complete",
		zap.Uint64("operations", r.seq),
		zap.Int("snapshots", len(snapshots)),
	)
	return nil
}

func (r *Runner) apply(op *model.ScenarioOp) (model.ResultRecord, error) {
	switch op.Op {
	case model.OpCreatePool:
		p, err := r.registry.CreatePool(TokenAddress(op.TokenA), TokenAddress(op.TokenB), op.Fee)
		if err != nil {
			return model.ResultRecord{}, err
		}
		p.GrowObservations(r.cfg.OracleSlots)
		return model.ResultRecord{Pool: p.Address().Hex()}, nil

	case model.OpAdvance:
		r.clock += op.Seconds
		return model.ResultRecord{}, nil

	case model.OpSnapshot:
		return model.ResultRecord{}, nil
	}

	p, err := r.registry.Get(TokenAddress(op.TokenA), TokenAddress(op.TokenB), op.Fee)
	if err != nil {
		return model.ResultRecord{}, err
	}
	result := model.ResultRecord{Pool: p.Address().Hex()}

	switch op.Op {
	case model.OpInitialize:
		sqrtPrice, err := parseUint256(op.SqrtPriceX96)
		if err != nil {
			return result, err
		}
		if err := p.Initialize(sqrtPrice); err != nil {
			return result, err
		}

	case model.OpMint:
		actor := r.fundedActor(op.Actor, p)
		liquidity, err := parseUint256(op.Liquidity)
		if err != nil {
			return result, err
		}
		cb := &actorCallbacks{ledger: r.ledger, actor: actor, pool: p}
		amount0, amount1, err := p.Mint(actor, op.LowerTick, op.UpperTick, liquidity, cb, nil)
		if err != nil {
			return result, err
		}
		result.Amount0 = amount0.Dec()
		result.Amount1 = amount1.Dec()

	case model.OpBurn:
		actor := actorAddress(op.Actor)
		liquidity, err := parseUint256(op.Liquidity)
		if err != nil {
			return result, err
		}
		amount0, amount1, err := p.Burn(actor, op.LowerTick, op.UpperTick, liquidity)
		if err != nil {
			return result, err
		}
		result.Amount0 = amount0.Dec()
		result.Amount1 = amount1.Dec()

	case model.OpCollect:
		actor := actorAddress(op.Actor)
		recipient := actor
		if op.Recipient != "" {
			recipient = actorAddress(op.Recipient)
		}
		amount0, err := parseAmountOrMax(op.Amount0)
		if err != nil {
			return result, err
		}
		amount1, err := parseAmountOrMax(op.Amount1)
		if err != nil {
			return result, err
		}
		collected0, collected1, err := p.Collect(actor, recipient, op.LowerTick, op.UpperTick, amount0, amount1)
		if err != nil {
			return result, err
		}
		result.Amount0 = collected0.Dec()
		result.Amount1 = collected1.Dec()

	case model.OpSwap:
		actor := r.fundedActor(op.Actor, p)
		amountIn, err := parseUint256(op.AmountIn)
		if err != nil {
			return result, err
		}
		var limit *uint256.Int
		if op.SqrtPriceLimitX96 != "" {
			limit, err = parseUint256(op.SqrtPriceLimitX96)
			if err != nil {
				return result, err
			}
		}
		cb := &actorCallbacks{ledger: r.ledger, actor: actor, pool: p}
		amount0, amount1, err := p.Swap(actor, op.ZeroForOne, amountIn, limit, cb, nil)
		if err != nil {
			return result, err
		}
		result.Amount0 = amount0.String()
		result.Amount1 = amount1.String()
		r.metrics.forPool(p.Address().Hex(), p.Fee()).AddSwap(amount0, amount1)

	case model.OpFlash:
		actor := r.fundedActor(op.Actor, p)
		amount0, err := parseAmountOrZero(op.Amount0)
		if err != nil {
			return result, err
		}
		amount1, err := parseAmountOrZero(op.Amount1)
		if err != nil {
			return result, err
		}
		cb := &actorCallbacks{
			ledger:       r.ledger,
			actor:        actor,
			pool:         p,
			flashAmount0: amount0,
			flashAmount1: amount1,
		}
		if err := p.Flash(actor, amount0, amount1, cb, nil); err != nil {
			return result, err
		}
		result.Amount0 = amount0.Dec()
		result.Amount1 = amount1.Dec()

	default:
		return result, fmt.Errorf("unknown op %q", op.Op)
	}

	result.SqrtPriceX96 = p.SqrtPriceX96().Dec()
	result.Tick = p.CurrentTick()
	result.Liquidity = p.Liquidity().Dec()
	result.Price = model.PriceFromSqrtX96(p.SqrtPriceX96().ToBig())
	return result, nil
}

func (r *Runner) snapshotAll() []model.PoolSnapshot {
	var out []model.PoolSnapshot
	for _, p := range r.registry.Pools() {
		fg0, fg1 := p.FeeGrowthGlobal()
		out = append(out, model.PoolSnapshot{
			Seq:                  r.seq,
			Pool:                 p.Address().Hex(),
			Token0:               p.Token0().Hex(),
			Token1:               p.Token1().Hex(),
			Fee:                  p.Fee(),
			TickSpacing:          p.TickSpacing(),
			SqrtPriceX96:         p.SqrtPriceX96().Dec(),
			Tick:                 p.CurrentTick(),
			Liquidity:            p.Liquidity().Dec(),
			FeeGrowthGlobal0X128: fg0.Dec(),
			FeeGrowthGlobal1X128: fg1.Dec(),
			Price:                model.PriceFromSqrtX96(p.SqrtPriceX96().ToBig()),
		})
	}
	return out
}

// defaultFunding is minted to an actor for each pool token it touches,
// enough to settle any realistic scenario operation.
var defaultFunding = new(uint256.Int).Lsh(uint256.NewInt(1), 160)

// fundedActor resolves the actor's address and lazily funds it with both of
// the pool's tokens on first touch.
func (r *Runner) fundedActor(name string, p *pool.Pool) common.Address {
	actor := actorAddress(name)
	for _, tok := range []common.Address{p.Token0(), p.Token1()} {
		byToken, ok := r.funded[actor]
		if !ok {
			byToken = make(map[common.Address]bool)
			r.funded[actor] = byToken
		}
		if !byToken[tok] {
			if err := r.ledger.Mint(tok, actor, defaultFunding); err == nil {
				byToken[tok] = true
			}
		}
	}
	return actor
}

// actorAddress derives a deterministic address from an actor name.
func actorAddress(name string) common.Address {
	return deriveAddress("actor:" + name)
}

// TokenAddress derives a deterministic address from a token symbol, unless
// the symbol is already a hex address.
func TokenAddress(symbol string) common.Address {
	if common.IsHexAddress(symbol) {
		return common.HexToAddress(symbol)
	}
	return deriveAddress("token:" + symbol)
}

func deriveAddress(seed string) common.Address {
	sum := blake3.Sum256([]byte(seed))
	return common.BytesToAddress(sum[12:])
}

func parseUint256(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func parseAmountOrZero(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return parseUint256(s)
}

func parseAmountOrMax(s string) (*uint256.Int, error) {
	if s == "" || s == "max" {
		return new(uint256.Int).Not(new(uint256.Int)), nil
	}
	return parseUint256(s)
}
