package pool

import "errors"

var (
	// ErrInvalidTickRange reports lowerTick >= upperTick or a bound
	// outside the legal tick domain.
	ErrInvalidTickRange = errors.New("pool: invalid tick range")
	// ErrZeroLiquidity reports a mint or burn of zero liquidity.
	ErrZeroLiquidity = errors.New("pool: zero liquidity")
	// ErrZeroAmount reports a swap of zero input.
	ErrZeroAmount = errors.New("pool: zero amount")
	// ErrInsufficientInput reports a settlement callback that did not
	// deliver the required tokens. The operation is rolled back.
	ErrInsufficientInput = errors.New("pool: insufficient input")
	// ErrInvalidPriceLimit reports a swap price limit on the wrong side
	// of the current price or outside the price domain.
	ErrInvalidPriceLimit = errors.New("pool: invalid price limit")
	// ErrNotEnoughLiquidity reports a swap that exhausted all active
	// liquidity with input remaining. This is a hard stop, not a
	// partial fill.
	ErrNotEnoughLiquidity = errors.New("pool: not enough liquidity")
	// ErrFlashLoanNotPaid reports a flash callback that repaid less than
	// principal plus fee.
	ErrFlashLoanNotPaid = errors.New("pool: flash loan not paid")
	// ErrReentrant reports a pool operation invoked from inside another
	// operation's settlement callback.
	ErrReentrant = errors.New("pool: reentrant call")
	// ErrNotInitialized reports use of a pool before Initialize.
	ErrNotInitialized = errors.New("pool: not initialized")
	// ErrAlreadyInitialized reports a second Initialize.
	ErrAlreadyInitialized = errors.New("pool: already initialized")
	// ErrTransferFailed reports a token transfer the ledger rejected.
	ErrTransferFailed = errors.New("pool: token transfer failed")
)
