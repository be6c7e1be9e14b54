package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

func TestSubmitAccepted(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 100)

	w, err := f.wagers.Submit(f.ctx, SubmitRequest{
		UserID:    1,
		Mode:      domain.ModeFast,
		Amount:    50,
		Kind:      domain.KindColor,
		Selection: " RED ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "red", w.Selection)
	assert.Equal(t, f.gate.roundID, w.RoundID)
	assert.Equal(t, domain.StatusPending, w.Status)

	acc, err := f.wagers.Account(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.Balance)
	assert.Equal(t, 1, acc.TotalBets)

	recent, err := f.wagers.RecentWagers(f.ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, w.ID, recent[0].ID)
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name   string
		req    SubmitRequest
		setup  func(t *testing.T, f *fixture)
		want   error
		reason string
	}{
		{
			name:   "zero amount",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 0, Kind: domain.KindColor, Selection: "red"},
			want:   domain.ErrInvalidAmount,
			reason: "invalid_amount",
		},
		{
			name:   "below minimum",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 9, Kind: domain.KindColor, Selection: "red"},
			want:   domain.ErrBelowMinimumBet,
			reason: "invalid_amount",
		},
		{
			name:   "unknown mode",
			req:    SubmitRequest{UserID: 1, Mode: "TURBO", Amount: 10, Kind: domain.KindColor, Selection: "red"},
			want:   domain.ErrUnknownMode,
			reason: "invalid_request",
		},
		{
			name:   "bad color",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindColor, Selection: "blue"},
			want:   domain.ErrInvalidSelection,
			reason: "invalid_request",
		},
		{
			name:   "bad digit",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindNumber, Selection: "10"},
			want:   domain.ErrInvalidSelection,
			reason: "invalid_request",
		},
		{
			name:   "insufficient funds",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 101, Kind: domain.KindColor, Selection: "red"},
			want:   domain.ErrInsufficientFunds,
			reason: "insufficient_funds",
		},
		{
			name:   "locked round",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindColor, Selection: "red"},
			setup:  func(t *testing.T, f *fixture) { f.gate.lock() },
			want:   domain.ErrRoundLocked,
			reason: "round_locked",
		},
		{
			name: "blocked user",
			req:  SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindColor, Selection: "red"},
			setup: func(t *testing.T, f *fixture) {
				_, err := f.operator.SetBlocked(f.ctx, 1, true)
				require.NoError(t, err)
			},
			want:   domain.ErrUserBlocked,
			reason: "user_blocked",
		},
		{
			name:   "halted mode",
			req:    SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindColor, Selection: "red"},
			setup:  func(t *testing.T, f *fixture) { f.gate.halted = true },
			want:   domain.ErrModeHalted,
			reason: "mode_halted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, 1, 100)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			w, err := f.wagers.Submit(f.ctx, tt.req)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.reason, RejectReason(err))

			acc, err := f.balances.Account(f.ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(100), acc.Balance)
			assert.Zero(t, acc.TotalBets)

			stake, err := f.ledger.PendingStake(f.ctx)
			require.NoError(t, err)
			assert.Zero(t, stake)
		})
	}
}

type failingLedger struct {
	domain.BetLedger
}

func (failingLedger) Place(ctx context.Context, w *domain.Wager) error {
	return errors.New("disk full")
}

func TestSubmitRefundsWhenLedgerFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 100)
	uc := NewWagerUseCase(f.gate, failingLedger{f.ledger}, f.balances, f.history, DefaultMinBet, nil)

	_, err := uc.Submit(f.ctx, SubmitRequest{UserID: 1, Mode: domain.ModeFast, Amount: 40, Kind: domain.KindColor, Selection: "red"})
	require.Error(t, err)
	assert.Equal(t, "internal", RejectReason(err))

	acc, err := f.balances.Account(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
	assert.Zero(t, acc.TotalBets)
}

func TestConcurrentSubmitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 1000)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.wagers.Submit(f.ctx, SubmitRequest{
				UserID: 1, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindNumber, Selection: "4",
			}); err == nil {
				accepted.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), accepted.Load())
	acc, err := f.balances.Account(f.ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)
	stake, err := f.ledger.PendingStake(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stake)
}

func TestCurrentRound(t *testing.T) {
	f := newFixture(t)
	view, err := f.wagers.CurrentRound(f.ctx, domain.ModeFast)
	require.NoError(t, err)
	assert.Equal(t, f.gate.roundID, view.RoundID)
	assert.Equal(t, domain.PhaseOpen, view.Phase)

	_, err = f.wagers.CurrentRound(f.ctx, "SLOW")
	assert.ErrorIs(t, err, domain.ErrUnknownMode)
}

func TestSettledWagersAppearInRecent(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 100)
	f.submit(t, 1, domain.KindColor, "red", 10)
	f.submit(t, 1, domain.KindColor, "green", 10)
	f.draws = []int{1}

	_, err := f.engine.Settle(f.ctx, domain.ModeFast, f.gate.roundID)
	require.NoError(t, err)

	recent, err := f.wagers.RecentWagers(f.ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "green", recent[0].Selection)
	assert.Equal(t, domain.StatusWon, recent[0].Status)
	assert.Equal(t, domain.StatusLost, recent[1].Status)
	require.NotNil(t, recent[1].SettledAt)
}
