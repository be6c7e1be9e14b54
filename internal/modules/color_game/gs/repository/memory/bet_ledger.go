// Package memory provides memory-based repositories for the color game GS module.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

type roundKey struct {
	mode    domain.Mode
	roundID string
}

// BetLedger implements domain.BetLedger using memory
type BetLedger struct {
	wagers  map[string]*domain.Wager // id -> wager
	byRound map[roundKey][]string    // (mode, round) -> ids
	byUser  map[int64][]string       // userID -> ids, oldest first
	mu      sync.RWMutex
}

// NewBetLedger creates a new memory bet ledger
func NewBetLedger() *BetLedger {
	return &BetLedger{
		wagers:  make(map[string]*domain.Wager),
		byRound: make(map[roundKey][]string),
		byUser:  make(map[int64][]string),
	}
}

func (l *BetLedger) Place(ctx context.Context, wager *domain.Wager) error {
	if wager.Amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, wager.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.wagers[wager.ID]; exists {
		return fmt.Errorf("duplicate wager id %s", wager.ID)
	}

	w := wager.Clone()
	w.Status = domain.StatusPending
	w.Payout = 0
	w.SettledAt = nil

	l.wagers[w.ID] = w
	key := roundKey{mode: w.Mode, roundID: w.RoundID}
	l.byRound[key] = append(l.byRound[key], w.ID)
	l.byUser[w.UserID] = append(l.byUser[w.UserID], w.ID)

	wager.Status = domain.StatusPending
	return nil
}

func (l *BetLedger) PendingFor(ctx context.Context, mode domain.Mode, roundID string) ([]*domain.Wager, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byRound[roundKey{mode: mode, roundID: roundID}]
	pending := make([]*domain.Wager, 0, len(ids))
	for _, id := range ids {
		if w := l.wagers[id]; w.Status == domain.StatusPending {
			pending = append(pending, w.Clone())
		}
	}
	return pending, nil
}

func (l *BetLedger) Finalize(ctx context.Context, id string, status domain.WagerStatus, payout int64, at time.Time) (*domain.Wager, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("cannot finalize wager %s with status %s", id, status)
	}
	if payout < 0 {
		return nil, fmt.Errorf("%w: negative payout for wager %s", domain.ErrInvalidAmount, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wagers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWagerNotFound, id)
	}
	if w.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrWagerNotPending, id, w.Status)
	}

	w.Status = status
	w.Payout = payout
	settledAt := at
	w.SettledAt = &settledAt
	return w.Clone(), nil
}

func (l *BetLedger) ForUser(ctx context.Context, userID int64, limit int) ([]*domain.Wager, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byUser[userID]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]*domain.Wager, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.wagers[ids[i]].Clone())
	}
	return out, nil
}

func (l *BetLedger) PendingStake(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, w := range l.wagers {
		if w.Status == domain.StatusPending {
			total += w.Amount
		}
	}
	return total, nil
}

// PruneSettledBefore drops terminal wagers settled before cutoff and returns
// how many were removed. Pending wagers are never pruned.
func (l *BetLedger) PruneSettledBefore(ctx context.Context, cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.wagers {
		if w.Status.Terminal() && w.SettledAt != nil && w.SettledAt.Before(cutoff) {
			delete(l.wagers, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	for key, ids := range l.byRound {
		if kept := l.keep(ids); len(kept) > 0 {
			l.byRound[key] = kept
		} else {
			delete(l.byRound, key)
		}
	}
	for userID, ids := range l.byUser {
		if kept := l.keep(ids); len(kept) > 0 {
			l.byUser[userID] = kept
		} else {
			delete(l.byUser, userID)
		}
	}
	return removed
}

func (l *BetLedger) keep(ids []string) []string {
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := l.wagers[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}
