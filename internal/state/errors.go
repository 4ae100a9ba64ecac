package state

import "errors"

// Precondition violations fail the whole call with no state change.
// Settlement shortfall is deliberately not in this list: settleExpired
// pays first-come up to the available balance instead of failing.
var (
	ErrInvalidState           = errors.New("operation not valid in current contract state")
	ErrPositionNotFound       = errors.New("sponsor has no position")
	ErrPositionExists         = errors.New("sponsor already has a position")
	ErrPendingRequest         = errors.New("position locked by a pending request")
	ErrNoPendingRequest       = errors.New("no pending request")
	ErrRequestNotPassed       = errors.New("request liveness has not passed")
	ErrBelowGCR               = errors.New("resulting collateralization below global ratio")
	ErrMinSponsorTokens       = errors.New("position would fall below minimum sponsor tokens")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrUnauthorized           = errors.New("caller not authorized")
	ErrPastExpiry             = errors.New("operation not allowed at or past expiration")
	ErrPreExpiry              = errors.New("operation not allowed before expiration")
	ErrPriceNotResolved       = errors.New("oracle price not yet resolved")
	ErrFinalFeeUnpayable      = errors.New("collateral cannot cover the final fee")
	ErrLiquidationNotFound    = errors.New("liquidation not found")
	ErrDisputeWindowClosed    = errors.New("liquidation liveness has expired")
	ErrAlreadyDisputed        = errors.New("liquidation already disputed or resolved")
	ErrNotDisputed            = errors.New("liquidation was never disputed")
	ErrAlreadyPaid            = errors.New("share already withdrawn")
	ErrInvalidAmount          = errors.New("amount must be positive")
)
