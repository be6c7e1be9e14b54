package usecase

import (
	"fmt"
	"sync"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

// DefaultHistorySize is how many finalized rounds each mode keeps
const DefaultHistorySize = 50

type modeHistory struct {
	mu     sync.RWMutex
	rounds []domain.Round // newest first
}

// History keeps the most recent finalized rounds per mode. It is a display
// cache, not a system of record.
type History struct {
	capacity int
	modes    map[domain.Mode]*modeHistory
}

// NewHistory creates a history holding capacity rounds per mode
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	h := &History{
		capacity: capacity,
		modes:    make(map[domain.Mode]*modeHistory, len(domain.Modes)),
	}
	for _, m := range domain.Modes {
		h.modes[m] = &modeHistory{rounds: make([]domain.Round, 0, capacity)}
	}
	return h
}

// Push adds a round as the newest entry, evicting the oldest beyond capacity
func (h *History) Push(round domain.Round) error {
	mh, ok := h.modes[round.Mode]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMode, round.Mode)
	}
	mh.mu.Lock()
	defer mh.mu.Unlock()

	n := len(mh.rounds)
	if n < h.capacity {
		mh.rounds = append(mh.rounds, domain.Round{})
		n++
	}
	copy(mh.rounds[1:n], mh.rounds[:n-1])
	mh.rounds[0] = round
	return nil
}

// Recent returns up to limit rounds, newest first. limit <= 0 means all.
func (h *History) Recent(mode domain.Mode, limit int) ([]domain.Round, error) {
	mh, ok := h.modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	mh.mu.RLock()
	defer mh.mu.RUnlock()

	if limit <= 0 || limit > len(mh.rounds) {
		limit = len(mh.rounds)
	}
	out := make([]domain.Round, limit)
	copy(out, mh.rounds[:limit])
	return out, nil
}

// Contains reports whether roundID is among the retained rounds of mode
func (h *History) Contains(mode domain.Mode, roundID string) bool {
	mh, ok := h.modes[mode]
	if !ok {
		return false
	}
	mh.mu.RLock()
	defer mh.mu.RUnlock()
	for _, r := range mh.rounds {
		if r.RoundID == roundID {
			return true
		}
	}
	return false
}
