package escrow

import "errors"

// Named failure conditions for the escrow state machine. Each is fatal for
// the call that raised it; callers never see a partial mutation.
var (
	ErrOwnerZero     = errors.New("OWNER_ZERO")
	ErrOperatorZero  = errors.New("OPERATOR_ZERO")
	ErrTreasuryZero  = errors.New("TREASURY_ZERO")
	ErrAssetZero     = errors.New("ASSET_ZERO")
	ErrExpiryGtWeek  = errors.New("EXPIRY_GT_WEEK")
	ErrLimitZero     = errors.New("LIMIT_ZERO")
	ErrLimitExceeded = errors.New("LIMIT_EXCEEDED")
	ErrAmountZero    = errors.New("AMOUNT_ZERO")
	ErrUserZero      = errors.New("USER_ZERO")
	ErrNotUser       = errors.New("NOT_USER")
	ErrNotOperator   = errors.New("NOT_OPERATOR")
	ErrNotOwner      = errors.New("NOT_OWNER")
	ErrHashReused    = errors.New("HASH_REUSED")
	ErrNotLocked     = errors.New("NOT_LOCKED")
	ErrHashMismatch  = errors.New("HASH_MISMATCH")
	ErrEscrowActive  = errors.New("ESCROW_ACTIVE")
	ErrTransferFrom  = errors.New("TRANSFER_FROM_FAIL")
	ErrTransferFail  = errors.New("TRANSFER_FAIL")
)
