package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
	ErrPaused        = errors.New("engine paused")

	// Market construction.
	ErrInvalidCollateral     = errors.New("collateral token not whitelisted")
	ErrInvalidTagCount       = errors.New("invalid number of outcome tags")
	ErrInvalidEndTime        = errors.New("end time not in the future")
	ErrInvalidResolutionTime = errors.New("resolution time before end time")
	ErrInvalidScalarBounds   = errors.New("scalar lower bound not below upper bound")
	ErrFeeTooHigh            = errors.New("swap fee at or above one")

	// Trading.
	ErrZeroAmount         = errors.New("zero amount")
	ErrMarketNotEnabled   = errors.New("market not enabled")
	ErrTradingClosed      = errors.New("trading window closed")
	ErrMarketFinalized    = errors.New("market already finalized")
	ErrMarketNotFinalized = errors.New("market not finalized")
	ErrPoolNotSeeded      = errors.New("pool has no liquidity")
	ErrPoolAlreadySeeded  = errors.New("pool already seeded")
	ErrInvalidOutcome     = errors.New("outcome index out of range")
	ErrMinSharesOut       = errors.New("shares out below minimum")
	ErrMaxSharesIn        = errors.New("shares in above maximum")
	ErrInsufficientShares = errors.New("insufficient outcome share balance")
	ErrInsufficientLP     = errors.New("insufficient pool token balance")
	ErrInvalidPayload     = errors.New("invalid transfer payload")
	ErrWeightIndication   = errors.New("weight indication rejected")

	// Settlement.
	ErrResolutionTimeNotReached = errors.New("resolution time not reached")
	ErrOracleConfigFetchFailed  = errors.New("oracle config fetch failed")
	ErrInvalidPaymentToken      = errors.New("payment token not accepted by oracle")
	ErrInsufficientBond         = errors.New("attached amount below validity bond")
	ErrAlreadyFinalized         = errors.New("already finalized")
	ErrRequestPending           = errors.New("data request already pending")
	ErrRequestCreated           = errors.New("data request already created")
	ErrNothingToClaim           = errors.New("nothing to claim")
	ErrInvalidPayout            = errors.New("invalid payout numerators")

	// Storage accounting.
	ErrInsufficientStorage = errors.New("insufficient storage deposit")
	ErrStorageInUse        = errors.New("storage deposit still in use")
)

// IsRejection reports whether an error should cause a transfer-call payload
// to be refused (full amount returned to the sender) rather than surfaced as
// an internal failure.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrInvalidCollateral),
		errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrMarketNotEnabled),
		errors.Is(err, ErrTradingClosed),
		errors.Is(err, ErrMarketFinalized),
		errors.Is(err, ErrPoolNotSeeded),
		errors.Is(err, ErrPoolAlreadySeeded),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrMinSharesOut),
		errors.Is(err, ErrWeightIndication),
		errors.Is(err, ErrInvalidPaymentToken),
		errors.Is(err, ErrInsufficientBond),
		errors.Is(err, ErrRequestPending),
		errors.Is(err, ErrRequestCreated),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
