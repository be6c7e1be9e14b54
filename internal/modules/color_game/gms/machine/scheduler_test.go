package machine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/internal/modules/color_game/gs/repository/memory"
	"github.com/frankieli/color_wager/internal/modules/color_game/gs/usecase"
	"github.com/frankieli/color_wager/internal/modules/wallet"
)

type recordingSettler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingSettler) Settle(ctx context.Context, mode domain.Mode, roundID string) (*domain.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(mode)+"/"+roundID)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Settlement{Round: domain.Round{RoundID: roundID, Mode: mode}}, nil
}

func (r *recordingSettler) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeClock advances by one second on every tick of the test
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestScheduler(settler Settler) (*Scheduler, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)}
	return NewScheduler(settler, WithClock(clk.Now)), clk
}

func tickN(t *testing.T, s *Scheduler, clk *fakeClock, mode domain.Mode, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		clk.Advance(time.Second)
		require.NoError(t, s.TickMode(context.Background(), mode))
	}
}

func TestInitialClocks(t *testing.T) {
	s, clk := newTestScheduler(&recordingSettler{})
	for _, m := range domain.Modes {
		v, err := s.Snapshot(m)
		require.NoError(t, err)
		assert.Equal(t, m.Seconds(), v.TimeLeft)
		assert.Equal(t, domain.PhaseOpen, v.Phase)
		assert.Equal(t, domain.RoundIDFor(clk.Now(), m), v.RoundID)
		assert.False(t, v.Halted)
	}

	_, err := s.Snapshot("NOPE")
	assert.ErrorIs(t, err, domain.ErrUnknownMode)
}

func TestPhaseGating(t *testing.T) {
	settler := &recordingSettler{}
	s, clk := newTestScheduler(settler)
	ctx := context.Background()

	tickN(t, s, clk, domain.ModeFast, 24)
	v, _ := s.Snapshot(domain.ModeFast)
	assert.Equal(t, 6, v.TimeLeft)
	assert.Equal(t, domain.PhaseOpen, v.Phase)

	var got string
	require.NoError(t, s.WithOpenRound(ctx, domain.ModeFast, func(roundID string) error {
		got = roundID
		return nil
	}))
	assert.Equal(t, v.RoundID, got)

	tickN(t, s, clk, domain.ModeFast, 1)
	v, _ = s.Snapshot(domain.ModeFast)
	assert.Equal(t, 5, v.TimeLeft)
	assert.Equal(t, domain.PhaseLocked, v.Phase)

	called := false
	err := s.WithOpenRound(ctx, domain.ModeFast, func(string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrRoundLocked)
	assert.False(t, called)

	// other modes are unaffected
	require.NoError(t, s.WithOpenRound(ctx, domain.ModeStd, func(string) error { return nil }))
	assert.Empty(t, settler.Calls())
}

func TestRolloverAfterFullDuration(t *testing.T) {
	settler := &recordingSettler{}
	s, clk := newTestScheduler(settler)

	first, _ := s.Snapshot(domain.ModeFast)
	tickN(t, s, clk, domain.ModeFast, 29)
	assert.Empty(t, settler.Calls())

	tickN(t, s, clk, domain.ModeFast, 1)
	assert.Equal(t, []string{"FAST/" + first.RoundID}, settler.Calls())

	next, _ := s.Snapshot(domain.ModeFast)
	assert.NotEqual(t, first.RoundID, next.RoundID)
	assert.Equal(t, 30, next.TimeLeft)
	assert.Equal(t, domain.PhaseOpen, next.Phase)

	std, _ := s.Snapshot(domain.ModeStd)
	assert.Equal(t, 60, std.TimeLeft, "untouched mode keeps its clock")
}

func TestRoundIDNeverRepeatsWhenClockStalls(t *testing.T) {
	settler := &recordingSettler{}
	s, _ := newTestScheduler(settler)
	ctx := context.Background()

	first, _ := s.Snapshot(domain.ModeFast)
	for i := 0; i < 30; i++ {
		require.NoError(t, s.TickMode(ctx, domain.ModeFast))
	}
	next, _ := s.Snapshot(domain.ModeFast)
	assert.NotEqual(t, first.RoundID, next.RoundID)
}

func TestInvariantViolationHaltsMode(t *testing.T) {
	settler := &recordingSettler{err: errors.New("ledger corrupted")}
	s, clk := newTestScheduler(settler)
	ctx := context.Background()

	events := make(chan domain.RoundEvent, 8)
	s.RegisterEventHandler(func(e domain.RoundEvent) { events <- e })

	tickN(t, s, clk, domain.ModeFast, 29)
	clk.Advance(time.Second)
	err := s.TickMode(ctx, domain.ModeFast)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.ErrorIs(t, s.Halted(domain.ModeFast), domain.ErrInvariantViolation)

	err = s.WithOpenRound(ctx, domain.ModeFast, func(string) error { return nil })
	assert.ErrorIs(t, err, domain.ErrModeHalted)

	// further ticks do not settle again
	assert.Error(t, s.TickMode(ctx, domain.ModeFast))
	assert.Len(t, settler.Calls(), 1)

	v, _ := s.Snapshot(domain.ModeFast)
	assert.True(t, v.Halted)

	// other modes keep running
	tickN(t, s, clk, domain.ModeStd, 3)
	assert.NoError(t, s.Halted(domain.ModeStd))

	timeout := time.After(time.Second)
	for {
		select {
		case e := <-events:
			if e.Type != domain.EventModeHalted {
				continue
			}
			assert.Equal(t, domain.ModeFast, e.Mode)
			assert.ErrorIs(t, e.Err, domain.ErrInvariantViolation)
			return
		case <-timeout:
			t.Fatal("no halt event")
		}
	}
}

func TestEventsOnLockAndSettle(t *testing.T) {
	s, clk := newTestScheduler(&recordingSettler{})
	var mu sync.Mutex
	seen := map[domain.EventType]int{}
	s.RegisterEventHandler(func(e domain.RoundEvent) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
	})

	tickN(t, s, clk, domain.ModeFast, 30)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[domain.EventRoundLocked] == 1 &&
			seen[domain.EventRoundSettled] == 1 &&
			seen[domain.EventRoundOpened] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTickAllModes(t *testing.T) {
	settler := &recordingSettler{}
	s, clk := newTestScheduler(settler)
	for i := 0; i < 60; i++ {
		clk.Advance(time.Second)
		s.Tick(context.Background())
	}
	calls := settler.Calls()
	assert.Len(t, calls, 3, "FAST settles twice, STD once")

	pro, _ := s.Snapshot(domain.ModePro)
	assert.Equal(t, 120, pro.TimeLeft)
}

func TestSubmitAndSettleNeverInterleave(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewBetLedger()
	balances := wallet.NewStore()
	history := usecase.NewHistory(usecase.DefaultHistorySize)
	engine := usecase.NewSettlementEngine(ledger, balances, usecase.NewOverrideStore(), history, usecase.DefaultPayouts)

	s, clk := newTestScheduler(engine)
	engine.BindRounds(s)
	wagers := usecase.NewWagerUseCase(s, ledger, balances, history, usecase.DefaultMinBet, nil)

	const users = 8
	var initial int64
	for id := int64(1); id <= users; id++ {
		_, err := balances.SetBalance(ctx, id, 100000)
		require.NoError(t, err)
		initial += 100000
	}

	stop := make(chan struct{})
	var accepted atomic.Int64
	var wg sync.WaitGroup
	for id := int64(1); id <= users; id++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, err := wagers.Submit(ctx, usecase.SubmitRequest{
					UserID: userID, Mode: domain.ModeFast, Amount: 10, Kind: domain.KindColor, Selection: "red",
				})
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, domain.ErrRoundLocked):
				case errors.Is(err, domain.ErrInsufficientFunds):
					return
				default:
					assert.NoError(t, err)
					return
				}
			}
		}(id)
	}

	for i := 0; i < 90; i++ {
		clk.Advance(time.Second)
		require.NoError(t, s.TickMode(ctx, domain.ModeFast))
	}
	close(stop)
	wg.Wait()

	// run the final round out so every accepted wager is settled
	tickN(t, s, clk, domain.ModeFast, 30)

	require.NoError(t, s.Halted(domain.ModeFast))
	stake, err := ledger.PendingStake(ctx)
	require.NoError(t, err)
	assert.Zero(t, stake, "every accepted wager was settled")

	rounds, err := history.Recent(domain.ModeFast, 0)
	require.NoError(t, err)
	require.Len(t, rounds, 4)

	var settledWagers int
	var paidOut, staked int64
	for _, r := range rounds {
		settledWagers += r.TotalWagers
		paidOut += r.TotalPayout
		staked += r.TotalStake
	}
	assert.Equal(t, int(accepted.Load()), settledWagers)
	assert.Equal(t, initial-staked+paidOut, balances.TotalBalance(ctx))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewScheduler(&recordingSettler{}, WithTickInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		v, _ := s.Snapshot(domain.ModeFast)
		return v.TimeLeft < 30
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// readingSettler looks up the current round from inside Settle, the way the
// settlement engine does
type readingSettler struct {
	s    *Scheduler
	mu   sync.Mutex
	seen []string
}

func (r *readingSettler) Settle(ctx context.Context, mode domain.Mode, roundID string) (*domain.Settlement, error) {
	current, err := r.s.CurrentRoundID(mode)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.seen = append(r.seen, current+"="+roundID)
	r.mu.Unlock()
	return &domain.Settlement{Round: domain.Round{RoundID: roundID, Mode: mode}}, nil
}

func TestCurrentRoundIDReadableDuringSettle(t *testing.T) {
	settler := &readingSettler{}
	s, clk := newTestScheduler(settler)
	settler.s = s

	first, _ := s.Snapshot(domain.ModeFast)
	got, err := s.CurrentRoundID(domain.ModeFast)
	require.NoError(t, err)
	assert.Equal(t, first.RoundID, got)

	tickN(t, s, clk, domain.ModeFast, 30)
	assert.Equal(t, []string{first.RoundID + "=" + first.RoundID}, settler.seen)

	next, _ := s.Snapshot(domain.ModeFast)
	got, err = s.CurrentRoundID(domain.ModeFast)
	require.NoError(t, err)
	assert.Equal(t, next.RoundID, got)

	_, err = s.CurrentRoundID("NOPE")
	assert.ErrorIs(t, err, domain.ErrUnknownMode)
}

func TestEventsDeliveredInOrderPerMode(t *testing.T) {
	s, clk := newTestScheduler(&recordingSettler{})
	var mu sync.Mutex
	var order []domain.EventType
	s.RegisterEventHandler(func(e domain.RoundEvent) {
		if e.Mode != domain.ModeFast {
			return
		}
		if e.Type == domain.EventRoundSettled {
			// a slow consumer must not let the next round's open overtake it
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, e.Type)
		mu.Unlock()
	})

	tickN(t, s, clk, domain.ModeFast, 60)

	want := []domain.EventType{
		domain.EventRoundLocked, domain.EventRoundSettled, domain.EventRoundOpened,
		domain.EventRoundLocked, domain.EventRoundSettled, domain.EventRoundOpened,
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(want)
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, order)
}

// modeFailSettler fails every settlement of one mode
type modeFailSettler struct {
	recordingSettler
	fail domain.Mode
}

func (m *modeFailSettler) Settle(ctx context.Context, mode domain.Mode, roundID string) (*domain.Settlement, error) {
	st, err := m.recordingSettler.Settle(ctx, mode, roundID)
	if mode == m.fail {
		return nil, errors.New("ledger corrupted")
	}
	return st, err
}

func TestRunKeepsOtherModesAfterHalt(t *testing.T) {
	settler := &modeFailSettler{fail: domain.ModeFast}
	s := NewScheduler(settler, WithTickInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return s.Halted(domain.ModeFast) != nil
	}, 2*time.Second, 5*time.Millisecond)

	// STD rolls over after the FAST worker has stopped
	assert.Eventually(t, func() bool {
		for _, c := range settler.Calls() {
			if strings.HasPrefix(c, "STD/") {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	assert.NoError(t, s.Halted(domain.ModeStd))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
