package sim

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/pool"
	"clamm/internal/token"
)

// actorCallbacks settles pool debts out of one actor's ledger balances.
type actorCallbacks struct {
	ledger *token.Ledger
	actor  common.Address
	pool   *pool.Pool

	// flash principal, set before each Flash call so the repayment can
	// cover principal plus fee.
	flashAmount0 *uint256.Int
	flashAmount1 *uint256.Int
}

func (c *actorCallbacks) PayMint(amount0, amount1 *uint256.Int, _ []byte) error {
	if err := c.ledger.Transfer(c.pool.Token0(), c.actor, c.pool.Address(), amount0); err != nil {
		return err
	}
	return c.ledger.Transfer(c.pool.Token1(), c.actor, c.pool.Address(), amount1)
}

func (c *actorCallbacks) PaySwap(amount0, amount1 *big.Int, _ []byte) error {
	if amount0.Sign() > 0 {
		owed, _ := uint256.FromBig(amount0)
		return c.ledger.Transfer(c.pool.Token0(), c.actor, c.pool.Address(), owed)
	}
	if amount1.Sign() > 0 {
		owed, _ := uint256.FromBig(amount1)
		return c.ledger.Transfer(c.pool.Token1(), c.actor, c.pool.Address(), owed)
	}
	return nil
}

func (c *actorCallbacks) RepayFlash(fee0, fee1 *uint256.Int, _ []byte) error {
	repay0 := new(uint256.Int).Add(c.flashAmount0, fee0)
	repay1 := new(uint256.Int).Add(c.flashAmount1, fee1)
	if err := c.ledger.Transfer(c.pool.Token0(), c.actor, c.pool.Address(), repay0); err != nil {
		return err
	}
	return c.ledger.Transfer(c.pool.Token1(), c.actor, c.pool.Address(), repay1)
}
