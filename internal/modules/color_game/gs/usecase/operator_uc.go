package usecase

import (
	"context"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
)

// AccountAdmin is the operator side of the user directory
type AccountAdmin interface {
	SetBalance(ctx context.Context, userID int64, balance int64) (domain.Account, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) (domain.Account, error)
}

// Distribution is the live pending stake of the current round of a mode
type Distribution struct {
	Mode     domain.Mode      `json:"mode"`
	RoundID  string           `json:"round_id"`
	TimeLeft int              `json:"time_left"`
	Phase    domain.Phase     `json:"phase"`
	Totals   map[string]int64 `json:"totals"` // "COLOR:red", "NUMBER:7", ...
	Wagers   int              `json:"wagers"`
	Stake    int64            `json:"stake"`
	Override *int             `json:"override,omitempty"`
}

// Stats is the operator dashboard summary
type Stats struct {
	PendingStake int64                             `json:"pending_stake"`
	Clocks       map[domain.Mode]domain.ClockView `json:"clocks"`
}

// OperatorUseCase backs the operator control surface
type OperatorUseCase struct {
	gate      RoundGate
	ledger    domain.BetLedger
	overrides *OverrideStore
	accounts  AccountAdmin
}

// NewOperatorUseCase creates an operator use case
func NewOperatorUseCase(gate RoundGate, ledger domain.BetLedger, overrides *OverrideStore, accounts AccountAdmin) *OperatorUseCase {
	return &OperatorUseCase{
		gate:      gate,
		ledger:    ledger,
		overrides: overrides,
		accounts:  accounts,
	}
}

// SetOverride forces the outcome of the next settlement of mode
func (uc *OperatorUseCase) SetOverride(ctx context.Context, mode domain.Mode, digit int) error {
	if err := uc.overrides.Set(mode, digit); err != nil {
		logger.Warn(ctx).Err(err).Str("mode", string(mode)).Int("digit", digit).Msg("Override rejected")
		return err
	}
	logger.Info(ctx).Str("mode", string(mode)).Int("digit", digit).Msg("Override set for next settlement")
	return nil
}

// Distribution computes the pending totals of the current round of mode,
// grouped by selection
func (uc *OperatorUseCase) Distribution(ctx context.Context, mode domain.Mode) (*Distribution, error) {
	clock, err := uc.gate.Snapshot(mode)
	if err != nil {
		return nil, err
	}
	pending, err := uc.ledger.PendingFor(ctx, mode, clock.RoundID)
	if err != nil {
		return nil, err
	}

	d := &Distribution{
		Mode:     mode,
		RoundID:  clock.RoundID,
		TimeLeft: clock.TimeLeft,
		Phase:    clock.Phase,
		Totals:   make(map[string]int64),
		Wagers:   len(pending),
	}
	for _, w := range pending {
		d.Totals[string(w.Kind)+":"+w.Selection] += w.Amount
		d.Stake += w.Amount
	}
	if digit, ok := uc.overrides.Peek(mode); ok {
		d.Override = &digit
	}
	return d, nil
}

// Stats summarizes every mode's clock and the total pending stake
func (uc *OperatorUseCase) Stats(ctx context.Context) (*Stats, error) {
	stake, err := uc.ledger.PendingStake(ctx)
	if err != nil {
		return nil, err
	}
	s := &Stats{PendingStake: stake, Clocks: make(map[domain.Mode]domain.ClockView, len(domain.Modes))}
	for _, m := range domain.Modes {
		clock, err := uc.gate.Snapshot(m)
		if err != nil {
			return nil, err
		}
		s.Clocks[m] = clock
	}
	return s, nil
}

// SetBalance overwrites a user's balance
func (uc *OperatorUseCase) SetBalance(ctx context.Context, userID int64, balance int64) (domain.Account, error) {
	acc, err := uc.accounts.SetBalance(ctx, userID, balance)
	if err != nil {
		return acc, err
	}
	logger.Info(ctx).Int64("user_id", userID).Int64("balance", balance).Msg("Balance set by operator")
	return acc, nil
}

// SetBlocked blocks or unblocks a user
func (uc *OperatorUseCase) SetBlocked(ctx context.Context, userID int64, blocked bool) (domain.Account, error) {
	acc, err := uc.accounts.SetBlocked(ctx, userID, blocked)
	if err != nil {
		return acc, err
	}
	logger.Info(ctx).Int64("user_id", userID).Bool("blocked", blocked).Msg("User block state changed")
	return acc, nil
}
