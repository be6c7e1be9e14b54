package domain

import (
	"errors"
	"fmt"
)

// Validation errors: rejected at the boundary, nothing mutated.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrBelowMinimumBet  = errors.New("amount below minimum bet")
	ErrInvalidDigit     = errors.New("digit must be between 0 and 9")
	ErrUnknownMode      = errors.New("unknown game mode")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrUnknownUser      = errors.New("unknown user")
)

// Policy errors: expected and recoverable, nothing mutated.
var (
	ErrRoundLocked       = errors.New("round is locked")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserBlocked       = errors.New("user is blocked")
	ErrModeHalted        = errors.New("game mode halted")
)

// Invariant violations: programming errors that halt the affected mode.
var (
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrWagerNotPending     = errors.New("wager is not pending")
	ErrWagerNotFound       = errors.New("wager not found")
	ErrRoundNotCurrent     = errors.New("round is not the current round")
	ErrRoundAlreadySettled = errors.New("round already settled")
)

// InvariantError carries diagnostics for a broken invariant. It matches both
// ErrInvariantViolation and its cause under errors.Is.
type InvariantError struct {
	Mode    Mode
	RoundID string
	Cause   error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s round %s: %v", e.Mode, e.RoundID, e.Cause)
}

func (e *InvariantError) Unwrap() []error {
	return []error{ErrInvariantViolation, e.Cause}
}

// NewInvariantError wraps cause as an invariant violation for mode/round
func NewInvariantError(mode Mode, roundID string, cause error) error {
	return &InvariantError{Mode: mode, RoundID: roundID, Cause: cause}
}

// IsValidation reports whether err is a caller input error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBelowMinimumBet) ||
		errors.Is(err, ErrInvalidDigit) ||
		errors.Is(err, ErrUnknownMode) ||
		errors.Is(err, ErrInvalidSelection) ||
		errors.Is(err, ErrUnknownUser)
}

// IsPolicy reports whether err is an expected business rejection
func IsPolicy(err error) bool {
	return errors.Is(err, ErrRoundLocked) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrUserBlocked) ||
		errors.Is(err, ErrModeHalted)
}
