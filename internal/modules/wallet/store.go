// Package wallet is the in-process balance store used by wager intake and
// settlement.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

type account struct {
	mu  sync.Mutex
	rec domain.Account
}

// Store implements domain.BalanceStore. Each account has its own lock, so
// different users never contend.
type Store struct {
	accounts map[int64]*account
	mu       sync.RWMutex
}

// NewStore creates an empty balance store
func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]*account),
	}
}

func (s *Store) get(userID int64) (*account, error) {
	s.mu.RLock()
	acc, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownUser, userID)
	}
	return acc, nil
}

func (s *Store) getOrCreate(userID int64) *account {
	s.mu.RLock()
	acc, ok := s.accounts[userID]
	s.mu.RUnlock()
	if ok {
		return acc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok = s.accounts[userID]; ok {
		return acc
	}
	acc = &account{rec: domain.Account{UserID: userID}}
	s.accounts[userID] = acc
	return acc
}

// SetBalance sets the balance of a user, creating the account if needed
func (s *Store) SetBalance(ctx context.Context, userID int64, balance int64) (domain.Account, error) {
	if balance < 0 {
		return domain.Account{}, fmt.Errorf("%w: balance cannot be negative", domain.ErrInvalidAmount)
	}
	acc := s.getOrCreate(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.rec.Balance = balance
	return acc.rec, nil
}

// SetBlocked blocks or unblocks a user
func (s *Store) SetBlocked(ctx context.Context, userID int64, blocked bool) (domain.Account, error) {
	acc, err := s.get(userID)
	if err != nil {
		return domain.Account{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.rec.Blocked = blocked
	return acc.rec, nil
}

// Account returns a copy of the user's record
func (s *Store) Account(ctx context.Context, userID int64) (domain.Account, error) {
	acc, err := s.get(userID)
	if err != nil {
		return domain.Account{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.rec, nil
}

// Debit takes a wager stake
func (s *Store) Debit(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	acc, err := s.get(userID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.rec.Blocked {
		return acc.rec.Balance, domain.ErrUserBlocked
	}
	if acc.rec.Balance < amount {
		return acc.rec.Balance, domain.ErrInsufficientFunds
	}
	acc.rec.Balance -= amount
	acc.rec.TotalBets++
	return acc.rec.Balance, nil
}

// Refund reverses a Debit, including its bet count
func (s *Store) Refund(ctx context.Context, userID int64, amount int64) error {
	acc, err := s.get(userID)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.rec.Balance += amount
	if acc.rec.TotalBets > 0 {
		acc.rec.TotalBets--
	}
	return nil
}

// Credit adds amount to the balance
func (s *Store) Credit(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	acc, err := s.get(userID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.rec.Balance += amount
	return acc.rec.Balance, nil
}

// ApplySettlementBatch credits a user's round payout and counters together
func (s *Store) ApplySettlementBatch(ctx context.Context, userID int64, totalPayout int64, wins, losses int) (int64, error) {
	if totalPayout < 0 || wins < 0 || losses < 0 {
		return 0, fmt.Errorf("%w: negative settlement batch", domain.ErrInvalidAmount)
	}
	acc, err := s.get(userID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.rec.Balance += totalPayout
	acc.rec.TotalWins += wins
	acc.rec.TotalLoss += losses
	return acc.rec.Balance, nil
}

// Accounts returns a snapshot of every account ordered by user id
func (s *Store) Accounts(ctx context.Context) []domain.Account {
	s.mu.RLock()
	accs := make([]*account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accs = append(accs, acc)
	}
	s.mu.RUnlock()

	out := make([]domain.Account, 0, len(accs))
	for _, acc := range accs {
		acc.mu.Lock()
		out = append(out, acc.rec)
		acc.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TotalBalance sums every balance
func (s *Store) TotalBalance(ctx context.Context) int64 {
	var total int64
	for _, acc := range s.Accounts(ctx) {
		total += acc.Balance
	}
	return total
}
