package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPaused            = errors.New("market paused")
	ErrNotPaused         = errors.New("market not paused")
	ErrSafeMode          = errors.New("market in safe mode")
	ErrBettingClosed     = errors.New("betting window closed")
	ErrBetTooSmall       = errors.New("bet below minimum")
	ErrBetTooLarge       = errors.New("bet above maximum")
	ErrInvalidSide       = errors.New("invalid side")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrOutcomeOutOfRange = errors.New("outcome outside allowed bounds")
	ErrInvalidParams     = errors.New("invalid market parameters")
	ErrNotSettleable     = errors.New("settlement interval not elapsed")
	ErrRoundNotSettled   = errors.New("round has no settlement result")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrNothingToClaim    = errors.New("nothing to claim")
	ErrBusy              = errors.New("another operation in progress")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
