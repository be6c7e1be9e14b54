// Package usecase implements wager intake, outcome resolution and round
// settlement for the color game.
package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
	"github.com/frankieli/color_wager/pkg/metrics"
)

// RandomSource returns a uniform integer in [0, n)
type RandomSource func(n int) int

// Payouts holds win multipliers in hundredths, so 196 pays 1.96x. Integer
// arithmetic keeps floor(amount × multiplier) exact.
type Payouts struct {
	ColorPercent  int64
	NumberPercent int64
}

// DefaultPayouts pays 1.96x on colors and 8.8x on numbers
var DefaultPayouts = Payouts{ColorPercent: 196, NumberPercent: 880}

// For returns the payout of a winning wager
func (p Payouts) For(w *domain.Wager) int64 {
	switch w.Kind {
	case domain.KindColor:
		return w.Amount * p.ColorPercent / 100
	case domain.KindNumber:
		return w.Amount * p.NumberPercent / 100
	}
	return 0
}

// Max returns the largest multiplier in hundredths
func (p Payouts) Max() int64 {
	if p.ColorPercent > p.NumberPercent {
		return p.ColorPercent
	}
	return p.NumberPercent
}

// RoundReader reports the round a mode is currently on. It must not block on
// the lock held by the caller of Settle.
type RoundReader interface {
	CurrentRoundID(mode domain.Mode) (string, error)
}

// SettlementEngine resolves a closing round and pays out its wagers. Settle
// must only be called by the owner of the mode's clock, which serializes it
// with wager intake.
type SettlementEngine struct {
	rounds    RoundReader
	ledger    domain.BetLedger
	balances  domain.BalanceStore
	overrides *OverrideStore
	history   *History
	payouts   Payouts
	random    RandomSource
	now       func() time.Time
	metrics   *metrics.Metrics
}

// SettlementOption configures a SettlementEngine
type SettlementOption func(*SettlementEngine)

// WithRandomSource replaces the outcome draw
func WithRandomSource(r RandomSource) SettlementOption {
	return func(e *SettlementEngine) { e.random = r }
}

// WithSettlementClock replaces time.Now for settlement timestamps
func WithSettlementClock(now func() time.Time) SettlementOption {
	return func(e *SettlementEngine) { e.now = now }
}

// WithSettlementMetrics records settlements into m
func WithSettlementMetrics(m *metrics.Metrics) SettlementOption {
	return func(e *SettlementEngine) { e.metrics = m }
}

// NewSettlementEngine creates a settlement engine
func NewSettlementEngine(
	ledger domain.BetLedger,
	balances domain.BalanceStore,
	overrides *OverrideStore,
	history *History,
	payouts Payouts,
	opts ...SettlementOption,
) *SettlementEngine {
	e := &SettlementEngine{
		ledger:    ledger,
		balances:  balances,
		overrides: overrides,
		history:   history,
		payouts:   payouts,
		random:    rand.IntN,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BindRounds sets the clock that Settle checks round ids against. Settle
// rejects every round until a clock is bound.
func (e *SettlementEngine) BindRounds(rounds RoundReader) {
	e.rounds = rounds
}

// checkCurrent rejects a round id that is not the mode's current round
func (e *SettlementEngine) checkCurrent(mode domain.Mode, roundID string) error {
	if e.rounds == nil {
		return domain.NewInvariantError(mode, roundID, fmt.Errorf("%w: no round clock bound", domain.ErrRoundNotCurrent))
	}
	current, err := e.rounds.CurrentRoundID(mode)
	if err != nil {
		return domain.NewInvariantError(mode, roundID, err)
	}
	if current != roundID {
		return domain.NewInvariantError(mode, roundID, fmt.Errorf("%w: clock is on %s", domain.ErrRoundNotCurrent, current))
	}
	return nil
}

// ResolveOutcome consumes the mode's override, or draws a digit when there is
// none. forced reports whether the override was used.
func (e *SettlementEngine) ResolveOutcome(mode domain.Mode) (digit int, forced bool) {
	if d, ok := e.overrides.TakeAndClear(mode); ok {
		return d, true
	}
	return e.random(10), false
}

type userTally struct {
	payout int64
	wins   int
	losses int
}

// Settle resolves the outcome of (mode, roundID), finalizes every pending
// wager of that round, credits each affected user once and records the round
// in history. Errors are invariant violations.
func (e *SettlementEngine) Settle(ctx context.Context, mode domain.Mode, roundID string) (*domain.Settlement, error) {
	start := time.Now()
	ctx = logger.WithRound(ctx, string(mode), roundID)

	if e.history.Contains(mode, roundID) {
		return nil, domain.NewInvariantError(mode, roundID, domain.ErrRoundAlreadySettled)
	}
	if err := e.checkCurrent(mode, roundID); err != nil {
		return nil, err
	}

	outcome, forced := e.ResolveOutcome(mode)
	colors := domain.ColorsFor(outcome)

	pending, err := e.ledger.PendingFor(ctx, mode, roundID)
	if err != nil {
		return nil, domain.NewInvariantError(mode, roundID, err)
	}

	settledAt := e.now()
	round := domain.Round{
		RoundID:     roundID,
		Mode:        mode,
		Outcome:     outcome,
		Colors:      colors,
		Forced:      forced,
		TotalWagers: len(pending),
		SettledAt:   settledAt,
	}

	finalized := make([]*domain.Wager, 0, len(pending))
	tallies := make(map[int64]*userTally)
	for _, w := range pending {
		status, payout := domain.StatusLost, int64(0)
		if w.Wins(outcome, colors) {
			status, payout = domain.StatusWon, e.payouts.For(w)
		}

		fw, err := e.ledger.Finalize(ctx, w.ID, status, payout, settledAt)
		if err != nil {
			logger.Error(ctx).
				Err(err).
				Str("wager_id", w.ID).
				Msg("Wager could not be finalized")
			return nil, domain.NewInvariantError(mode, roundID, err)
		}
		finalized = append(finalized, fw)

		t := tallies[w.UserID]
		if t == nil {
			t = &userTally{}
			tallies[w.UserID] = t
		}
		if status == domain.StatusWon {
			t.wins++
			t.payout += payout
		} else {
			t.losses++
		}
		round.TotalStake += w.Amount
		round.TotalPayout += payout
	}

	userIDs := make([]int64, 0, len(tallies))
	for id := range tallies {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, userID := range userIDs {
		t := tallies[userID]
		if _, err := e.balances.ApplySettlementBatch(ctx, userID, t.payout, t.wins, t.losses); err != nil {
			logger.Error(ctx).
				Err(err).
				Int64("user_id", userID).
				Int64("payout", t.payout).
				Msg("Settlement batch could not be applied")
			return nil, domain.NewInvariantError(mode, roundID, err)
		}
	}

	if err := e.history.Push(round); err != nil {
		return nil, domain.NewInvariantError(mode, roundID, err)
	}

	took := time.Since(start)
	e.metrics.RoundSettled(string(mode), round.TotalPayout, forced, took)

	logger.Info(ctx).
		Int("outcome", outcome).
		Interface("colors", colors).
		Bool("forced", forced).
		Int("total_wagers", round.TotalWagers).
		Int("users", len(userIDs)).
		Int64("total_stake", round.TotalStake).
		Int64("total_payout", round.TotalPayout).
		Dur("duration", took).
		Msg("Round settled")

	return &domain.Settlement{Round: round, Wagers: finalized}, nil
}
