package domain

import (
	"context"
	"time"
)

// Account is a user's balance record
type Account struct {
	UserID    int64 `json:"user_id"`
	Balance   int64 `json:"balance"`
	TotalBets int   `json:"total_bets"`
	TotalWins int   `json:"total_wins"`
	TotalLoss int   `json:"total_loss"`
	Blocked   bool  `json:"blocked"`
}

// BalanceStore owns user balances and betting counters
type BalanceStore interface {
	// Account returns a copy of the user's record
	Account(ctx context.Context, userID int64) (Account, error)

	// Debit takes amount for a wager and counts the bet. Fails with
	// ErrInsufficientFunds or ErrUserBlocked without mutating anything.
	Debit(ctx context.Context, userID int64, amount int64) (int64, error)

	// Refund reverses a Debit whose wager could not be recorded
	Refund(ctx context.Context, userID int64, amount int64) error

	// Credit adds amount unconditionally
	Credit(ctx context.Context, userID int64, amount int64) (int64, error)

	// ApplySettlementBatch credits totalPayout and bumps the win/loss
	// counters in one atomic update
	ApplySettlementBatch(ctx context.Context, userID int64, totalPayout int64, wins, losses int) (int64, error)
}

// BetLedger stores wagers keyed by id
type BetLedger interface {
	// Place inserts a new PENDING wager
	Place(ctx context.Context, wager *Wager) error

	// PendingFor returns copies of the PENDING wagers of one round
	PendingFor(ctx context.Context, mode Mode, roundID string) ([]*Wager, error)

	// Finalize moves one PENDING wager to a terminal status. Calling it on a
	// terminal wager returns ErrWagerNotPending.
	Finalize(ctx context.Context, id string, status WagerStatus, payout int64, at time.Time) (*Wager, error)

	// ForUser returns the user's most recent wagers, newest first
	ForUser(ctx context.Context, userID int64, limit int) ([]*Wager, error)

	// PendingStake sums the stake of every PENDING wager
	PendingStake(ctx context.Context) (int64, error)
}

// RoundArchive persists settled rounds outside the process
type RoundArchive interface {
	SaveSettlement(ctx context.Context, settlement *Settlement) error
}
