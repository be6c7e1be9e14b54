// Package machine drives the per-mode round clocks of the color game.
package machine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
	"github.com/frankieli/color_wager/pkg/metrics"
)

// Settler settles one closing round
type Settler interface {
	Settle(ctx context.Context, mode domain.Mode, roundID string) (*domain.Settlement, error)
}

// modeClock is the mutable state of one mode. mu serializes ticks with wager
// intake for that mode only.
type modeClock struct {
	mu       sync.Mutex
	mode     domain.Mode
	roundID  string
	timeLeft int
	phase    domain.Phase
	halted   error

	// current mirrors roundID for readers that cannot take mu
	current atomic.Pointer[string]
}

// setRound runs with mu held, except during construction
func (c *modeClock) setRound(roundID string) {
	c.roundID = roundID
	c.current.Store(&roundID)
}

func (c *modeClock) view() domain.ClockView {
	return domain.ClockView{
		Mode:     c.mode,
		RoundID:  c.roundID,
		TimeLeft: c.timeLeft,
		Phase:    c.phase,
		Halted:   c.halted != nil,
	}
}

// Scheduler owns one countdown per mode. Every tick decrements each clock;
// a clock that runs out is settled and reopened before its lock is released.
type Scheduler struct {
	clocks  map[domain.Mode]*modeClock
	settler Settler

	lockThreshold int
	interval      time.Duration
	now           func() time.Time
	metrics       *metrics.Metrics

	handlersMu    sync.RWMutex
	eventHandlers []domain.EventHandler
	queues        map[domain.Mode]*eventQueue
}

// eventQueue holds one mode's undelivered events. At most one goroutine
// drains it, so handlers see a mode's events in emission order.
type eventQueue struct {
	mu       sync.Mutex
	pending  []domain.RoundEvent
	draining bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLockThreshold sets how many final seconds reject wagers
func WithLockThreshold(seconds int) Option {
	return func(s *Scheduler) { s.lockThreshold = seconds }
}

// WithTickInterval sets the wall time between ticks
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithClock replaces time.Now for round id derivation
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics records halts into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler with every mode's first round open
func NewScheduler(settler Settler, opts ...Option) *Scheduler {
	s := &Scheduler{
		clocks:        make(map[domain.Mode]*modeClock, len(domain.Modes)),
		queues:        make(map[domain.Mode]*eventQueue, len(domain.Modes)),
		settler:       settler,
		lockThreshold: domain.DefaultLockThreshold,
		interval:      time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	for _, m := range domain.Modes {
		c := &modeClock{
			mode:     m,
			timeLeft: m.Seconds(),
			phase:    domain.PhaseFor(m.Seconds(), s.lockThreshold),
		}
		c.setRound(domain.RoundIDFor(now, m))
		s.clocks[m] = c
		s.queues[m] = &eventQueue{}
	}
	return s
}

// RegisterEventHandler registers an event handler
func (s *Scheduler) RegisterEventHandler(handler domain.EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// emitEvent queues an event for its mode without blocking the caller
func (s *Scheduler) emitEvent(event domain.RoundEvent) {
	q, ok := s.queues[event.Mode]
	if !ok {
		go s.dispatch(event)
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, event)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	go s.drain(q)
}

// drain delivers queued events one at a time until the queue is empty
func (s *Scheduler) drain(q *eventQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		event := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		s.dispatch(event)
	}
}

// dispatch runs every handler for event and waits for all of them
func (s *Scheduler) dispatch(event domain.RoundEvent) {
	s.handlersMu.RLock()
	handlers := make([]domain.EventHandler, len(s.eventHandlers))
	copy(handlers, s.eventHandlers)
	s.handlersMu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h domain.EventHandler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

func (s *Scheduler) clock(mode domain.Mode) (*modeClock, error) {
	c, ok := s.clocks[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	return c, nil
}

// Snapshot returns the current clock of a mode
func (s *Scheduler) Snapshot(mode domain.Mode) (domain.ClockView, error) {
	c, err := s.clock(mode)
	if err != nil {
		return domain.ClockView{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view(), nil
}

// CurrentRoundID returns the round a mode is on without taking the mode's
// lock, so it is safe to call from inside Settle.
func (s *Scheduler) CurrentRoundID(mode domain.Mode) (string, error) {
	c, err := s.clock(mode)
	if err != nil {
		return "", err
	}
	return *c.current.Load(), nil
}

// WithOpenRound runs fn with the current round id of mode while holding the
// mode's lock. The round cannot start settling until fn returns.
func (s *Scheduler) WithOpenRound(ctx context.Context, mode domain.Mode, fn func(roundID string) error) error {
	c, err := s.clock(mode)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted != nil {
		return domain.ErrModeHalted
	}
	if c.phase != domain.PhaseOpen {
		return fmt.Errorf("%w: %s has %ds left", domain.ErrRoundLocked, c.roundID, c.timeLeft)
	}
	return fn(c.roundID)
}

// Tick advances every mode by one second. Modes are ticked in parallel and an
// invariant violation in one never stops the others.
func (s *Scheduler) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range domain.Modes {
		wg.Add(1)
		go func(mode domain.Mode) {
			defer wg.Done()
			_ = s.TickMode(ctx, mode)
		}(m)
	}
	wg.Wait()
}

// TickMode advances a single mode by one second. It returns the invariant
// violation that halted the mode, if any.
func (s *Scheduler) TickMode(ctx context.Context, mode domain.Mode) error {
	c, err := s.clock(mode)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.halted != nil {
		return c.halted
	}

	if c.timeLeft > 1 {
		c.timeLeft--
		prev := c.phase
		c.phase = domain.PhaseFor(c.timeLeft, s.lockThreshold)
		if prev == domain.PhaseOpen && c.phase == domain.PhaseLocked {
			logger.Debug(ctx).
				Str("mode", string(mode)).
				Str("round_id", c.roundID).
				Int("time_left", c.timeLeft).
				Msg("🔒 [GMS] Betting locked")
			s.emitEvent(domain.RoundEvent{
				Type:     domain.EventRoundLocked,
				Mode:     mode,
				RoundID:  c.roundID,
				TimeLeft: c.timeLeft,
			})
		}
		return nil
	}

	return s.settleAndReopen(ctx, c)
}

// settleAndReopen runs with c.mu held
func (s *Scheduler) settleAndReopen(ctx context.Context, c *modeClock) error {
	c.phase = domain.PhaseSettling
	c.timeLeft = 0
	closing := c.roundID

	settlement, err := s.settler.Settle(ctx, c.mode, closing)
	if err != nil {
		if !errors.Is(err, domain.ErrInvariantViolation) {
			err = domain.NewInvariantError(c.mode, closing, err)
		}
		c.halted = err
		s.metrics.ModeHalted(string(c.mode))
		logger.Error(ctx).
			Err(err).
			Str("mode", string(c.mode)).
			Str("round_id", closing).
			Msg("⛔ [GMS] Settlement failed, mode halted")
		s.emitEvent(domain.RoundEvent{
			Type:    domain.EventModeHalted,
			Mode:    c.mode,
			RoundID: closing,
			Err:     err,
		})
		return err
	}

	s.emitEvent(domain.RoundEvent{
		Type:       domain.EventRoundSettled,
		Mode:       c.mode,
		RoundID:    closing,
		Settlement: settlement,
	})

	next := domain.RoundIDFor(s.now(), c.mode)
	if next == closing {
		// The tick ran early relative to wall time; the next slot is the one
		// after the closing round.
		next = domain.RoundIDFor(s.now().Add(c.mode.Duration()), c.mode)
	}
	c.setRound(next)
	c.timeLeft = c.mode.Seconds()
	c.phase = domain.PhaseFor(c.timeLeft, s.lockThreshold)

	logger.Info(ctx).
		Str("mode", string(c.mode)).
		Str("round_id", next).
		Str("previous_round_id", closing).
		Msg("🔄 [GMS] Round opened")
	s.emitEvent(domain.RoundEvent{
		Type:     domain.EventRoundOpened,
		Mode:     c.mode,
		RoundID:  next,
		TimeLeft: c.timeLeft,
	})
	return nil
}

// Halted returns the error that halted mode, or nil
func (s *Scheduler) Halted(mode domain.Mode) error {
	c, err := s.clock(mode)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Run ticks every mode on its own goroutine until ctx is done. Each mode
// keeps ticking independently; a halted mode stops its worker only.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx).Dur("interval", s.interval).Msg("🚀 [GMS] Round scheduler started")
	defer logger.Info(ctx).Msg("🛑 [GMS] Round scheduler stopped")

	for _, m := range domain.Modes {
		view, _ := s.Snapshot(m)
		s.emitEvent(domain.RoundEvent{
			Type:     domain.EventRoundOpened,
			Mode:     m,
			RoundID:  view.RoundID,
			TimeLeft: view.TimeLeft,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range domain.Modes {
		mode := m
		g.Go(func() error {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := s.TickMode(ctx, mode); err != nil {
						return nil
					}
				}
			}
		})
	}
	return g.Wait()
}
