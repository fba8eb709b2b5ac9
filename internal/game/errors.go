package game

import "errors"

// Validation errors surfaced synchronously to the caller. They are never
// retried and never affect the running round.
var (
	ErrWrongPhase       = errors.New("operation not allowed in current phase")
	ErrDuplicateBet     = errors.New("bet already placed this round")
	ErrStakeOutOfRange  = errors.New("stake outside allowed bounds")
	ErrNoActiveBet      = errors.New("no active bet found")
	ErrAlreadyCashedOut = errors.New("already cashed out")
)

// IsValidationError reports whether err belongs to the player-input
// taxonomy, so transports can map it to a 4xx instead of a 5xx.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrDuplicateBet) ||
		errors.Is(err, ErrStakeOutOfRange) ||
		errors.Is(err, ErrNoActiveBet) ||
		errors.Is(err, ErrAlreadyCashedOut)
}
