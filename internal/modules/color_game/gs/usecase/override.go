package usecase

import (
	"fmt"
	"sync"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

type overrideSlot struct {
	mu    sync.Mutex
	digit int
	set   bool
}

// OverrideStore holds at most one operator-forced outcome per mode. Each mode
// has its own slot and lock.
type OverrideStore struct {
	slots map[domain.Mode]*overrideSlot
}

// NewOverrideStore creates empty slots for every mode
func NewOverrideStore() *OverrideStore {
	s := &OverrideStore{slots: make(map[domain.Mode]*overrideSlot, len(domain.Modes))}
	for _, m := range domain.Modes {
		s.slots[m] = &overrideSlot{}
	}
	return s
}

// Set replaces any unconsumed override for mode
func (s *OverrideStore) Set(mode domain.Mode, digit int) error {
	slot, ok := s.slots[mode]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	if digit < 0 || digit > 9 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidDigit, digit)
	}
	slot.mu.Lock()
	slot.digit, slot.set = digit, true
	slot.mu.Unlock()
	return nil
}

// TakeAndClear returns the stored digit, if any, and empties the slot
func (s *OverrideStore) TakeAndClear(mode domain.Mode) (int, bool) {
	slot, ok := s.slots[mode]
	if !ok {
		return 0, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	digit, set := slot.digit, slot.set
	slot.digit, slot.set = 0, false
	return digit, set
}

// Peek returns the stored digit without consuming it
func (s *OverrideStore) Peek(mode domain.Mode) (int, bool) {
	slot, ok := s.slots[mode]
	if !ok {
		return 0, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.digit, slot.set
}
