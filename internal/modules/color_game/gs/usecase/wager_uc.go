package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
	"github.com/frankieli/color_wager/pkg/metrics"
)

// RoundGate serializes wager intake with the clock of each mode
type RoundGate interface {
	// WithOpenRound runs fn with the current round id while holding the
	// mode's lock, or fails with ErrRoundLocked if the round is not OPEN
	WithOpenRound(ctx context.Context, mode domain.Mode, fn func(roundID string) error) error

	// Snapshot returns the current clock of a mode
	Snapshot(mode domain.Mode) (domain.ClockView, error)
}

// DefaultMinBet is the smallest stake accepted
const DefaultMinBet = 10

// SubmitRequest is a wager submission
type SubmitRequest struct {
	UserID    int64
	Mode      domain.Mode
	Amount    int64
	Kind      domain.WagerKind
	Selection string
}

// WagerUseCase handles wager intake and the read models around it
type WagerUseCase struct {
	gate     RoundGate
	ledger   domain.BetLedger
	balances domain.BalanceStore
	history  *History
	minBet   int64
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewWagerUseCase creates a wager use case
func NewWagerUseCase(
	gate RoundGate,
	ledger domain.BetLedger,
	balances domain.BalanceStore,
	history *History,
	minBet int64,
	m *metrics.Metrics,
) *WagerUseCase {
	return &WagerUseCase{
		gate:     gate,
		ledger:   ledger,
		balances: balances,
		history:  history,
		minBet:   minBet,
		now:      time.Now,
		metrics:  m,
	}
}

func (uc *WagerUseCase) validate(req *SubmitRequest) error {
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMode, req.Mode)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, req.Amount)
	}
	if req.Amount < uc.minBet {
		return fmt.Errorf("%w: %d < %d", domain.ErrBelowMinimumBet, req.Amount, uc.minBet)
	}
	selection, err := domain.NormalizeSelection(req.Kind, req.Selection)
	if err != nil {
		return err
	}
	req.Selection = selection
	return nil
}

// Submit places a wager on the current round of req.Mode. The debit and the
// ledger insert happen together or not at all.
func (uc *WagerUseCase) Submit(ctx context.Context, req SubmitRequest) (*domain.Wager, error) {
	ctx = logger.WithFields(ctx, map[string]interface{}{
		"user_id": req.UserID,
		"mode":    string(req.Mode),
	})

	if err := uc.validate(&req); err != nil {
		uc.reject(ctx, req, err)
		return nil, err
	}

	var wager *domain.Wager
	err := uc.gate.WithOpenRound(ctx, req.Mode, func(roundID string) error {
		if _, err := uc.balances.Debit(ctx, req.UserID, req.Amount); err != nil {
			return err
		}

		w := &domain.Wager{
			ID:        domain.NewWagerID(),
			UserID:    req.UserID,
			Mode:      req.Mode,
			RoundID:   roundID,
			Amount:    req.Amount,
			Kind:      req.Kind,
			Selection: req.Selection,
			Status:    domain.StatusPending,
			PlacedAt:  uc.now(),
		}
		if err := uc.ledger.Place(ctx, w); err != nil {
			if rerr := uc.balances.Refund(ctx, req.UserID, req.Amount); rerr != nil {
				logger.Error(ctx).Err(rerr).Int64("amount", req.Amount).Msg("Refund after failed insert failed")
			}
			return fmt.Errorf("failed to record wager: %w", err)
		}
		wager = w
		return nil
	})
	if err != nil {
		uc.reject(ctx, req, err)
		return nil, err
	}

	uc.metrics.WagerAccepted(string(req.Mode), string(req.Kind), req.Amount)
	logger.Info(ctx).
		Str("wager_id", wager.ID).
		Str("round_id", wager.RoundID).
		Str("kind", string(wager.Kind)).
		Str("selection", wager.Selection).
		Int64("amount", wager.Amount).
		Msg("Wager accepted")

	return wager, nil
}

func (uc *WagerUseCase) reject(ctx context.Context, req SubmitRequest, err error) {
	uc.metrics.WagerRejected(string(req.Mode), RejectReason(err))
	ev := logger.Warn(ctx)
	if !domain.IsValidation(err) && !domain.IsPolicy(err) {
		ev = logger.Error(ctx)
	}
	ev.Err(err).
		Int64("amount", req.Amount).
		Str("kind", string(req.Kind)).
		Str("selection", req.Selection).
		Msg("Wager rejected")
}

// RejectReason maps an intake error to a short label
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoundLocked):
		return "round_locked"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrUserBlocked):
		return "user_blocked"
	case errors.Is(err, domain.ErrModeHalted):
		return "mode_halted"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrBelowMinimumBet):
		return "invalid_amount"
	case domain.IsValidation(err):
		return "invalid_request"
	default:
		return "internal"
	}
}

// CurrentRound returns the clock of a mode
func (uc *WagerUseCase) CurrentRound(ctx context.Context, mode domain.Mode) (domain.ClockView, error) {
	return uc.gate.Snapshot(mode)
}

// History returns up to limit finalized rounds of a mode, newest first
func (uc *WagerUseCase) History(ctx context.Context, mode domain.Mode, limit int) ([]domain.Round, error) {
	return uc.history.Recent(mode, limit)
}

// RecentWagers returns a user's latest wagers, newest first
func (uc *WagerUseCase) RecentWagers(ctx context.Context, userID int64, limit int) ([]*domain.Wager, error) {
	return uc.ledger.ForUser(ctx, userID, limit)
}

// Account returns a user's balance record
func (uc *WagerUseCase) Account(ctx context.Context, userID int64) (domain.Account, error) {
	return uc.balances.Account(ctx, userID)
}
