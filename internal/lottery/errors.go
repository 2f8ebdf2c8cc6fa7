package lottery

import "errors"

// Error taxonomy for the lottery lifecycle. Local callers get these as hard
// failures; the remote reconciliation path absorbs the business-rule subset
// into refund credits instead of surfacing them (see internal/remote).
var (
	ErrInvalidParams      = errors.New("invalid lottery params")
	ErrUnknownLottery     = errors.New("unknown lottery")
	ErrLotteryClosed      = errors.New("lottery closed")
	ErrLotteryNotOpen     = errors.New("lottery not open for sales")
	ErrNotMatured         = errors.New("lottery not matured")
	ErrAlreadyResolved    = errors.New("lottery already resolved")
	ErrEmptyPriceList     = errors.New("empty price list")
	ErrClosedForPricing   = errors.New("price table not set")
	ErrMisalignedBucket   = errors.New("bucket not aligned to bucket size")
	ErrZeroCount          = errors.New("ticket count must be positive")
	ErrNoWinningTickets   = errors.New("no winning tickets")
	ErrCollateralMismatch = errors.New("collateral asset mismatch")
	ErrAmountOverflow     = errors.New("amount overflow")
)
