package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/internal/modules/color_game/gs/repository/memory"
	"github.com/frankieli/color_wager/internal/modules/wallet"
)

// fakeGate is a RoundGate with one manually controlled round per mode
type fakeGate struct {
	mu      sync.Mutex
	roundID string
	phase   domain.Phase
	halted  bool
}

func newFakeGate(roundID string) *fakeGate {
	return &fakeGate{roundID: roundID, phase: domain.PhaseOpen}
}

func (g *fakeGate) WithOpenRound(ctx context.Context, mode domain.Mode, fn func(roundID string) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !mode.Valid() {
		return domain.ErrUnknownMode
	}
	if g.halted {
		return domain.ErrModeHalted
	}
	if g.phase != domain.PhaseOpen {
		return domain.ErrRoundLocked
	}
	return fn(g.roundID)
}

func (g *fakeGate) Snapshot(mode domain.Mode) (domain.ClockView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !mode.Valid() {
		return domain.ClockView{}, domain.ErrUnknownMode
	}
	return domain.ClockView{Mode: mode, RoundID: g.roundID, TimeLeft: 20, Phase: g.phase, Halted: g.halted}, nil
}

func (g *fakeGate) CurrentRoundID(mode domain.Mode) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !mode.Valid() {
		return "", domain.ErrUnknownMode
	}
	return g.roundID, nil
}

// setRound moves every mode of the gate to roundID
func (g *fakeGate) setRound(roundID string) {
	g.mu.Lock()
	g.roundID = roundID
	g.mu.Unlock()
}

func (g *fakeGate) lock() {
	g.mu.Lock()
	g.phase = domain.PhaseLocked
	g.mu.Unlock()
}

type fixture struct {
	ctx       context.Context
	gate      *fakeGate
	ledger    *memory.BetLedger
	balances  *wallet.Store
	overrides *OverrideStore
	history   *History
	engine    *SettlementEngine
	wagers    *WagerUseCase
	operator  *OperatorUseCase
	draws     []int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:       context.Background(),
		gate:      newFakeGate("20240101F0001"),
		ledger:    memory.NewBetLedger(),
		balances:  wallet.NewStore(),
		overrides: NewOverrideStore(),
		history:   NewHistory(DefaultHistorySize),
	}
	f.engine = NewSettlementEngine(f.ledger, f.balances, f.overrides, f.history, DefaultPayouts,
		WithRandomSource(func(n int) int {
			require.Equal(t, 10, n)
			require.NotEmpty(t, f.draws, "unexpected random draw")
			d := f.draws[0]
			f.draws = f.draws[1:]
			return d
		}))
	f.engine.BindRounds(f.gate)
	f.wagers = NewWagerUseCase(f.gate, f.ledger, f.balances, f.history, DefaultMinBet, nil)
	f.operator = NewOperatorUseCase(f.gate, f.ledger, f.overrides, f.balances)
	return f
}

func (f *fixture) fund(t *testing.T, userID, balance int64) {
	t.Helper()
	_, err := f.balances.SetBalance(f.ctx, userID, balance)
	require.NoError(t, err)
}

func (f *fixture) submit(t *testing.T, userID int64, kind domain.WagerKind, selection string, amount int64) *domain.Wager {
	t.Helper()
	w, err := f.wagers.Submit(f.ctx, SubmitRequest{
		UserID:    userID,
		Mode:      domain.ModeFast,
		Amount:    amount,
		Kind:      kind,
		Selection: selection,
	})
	require.NoError(t, err)
	return w
}
