// Package db archives settled rounds and their wagers with gorm.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

const betOrderBatchSize = 500

// Archive implements domain.RoundArchive
type Archive struct {
	db *gorm.DB
}

// NewArchive creates an archive on db
func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// Migrate creates or updates the archive tables
func (a *Archive) Migrate(ctx context.Context) error {
	return a.db.WithContext(ctx).AutoMigrate(&RoundRecord{}, &BetOrder{})
}

// SaveSettlement writes the round and every finalized wager in one transaction
func (a *Archive) SaveSettlement(ctx context.Context, s *domain.Settlement) error {
	if s == nil {
		return nil
	}
	now := time.Now()
	round := newRoundRecord(s, now)

	orders := make([]*BetOrder, 0, len(s.Wagers))
	for _, w := range s.Wagers {
		orders = append(orders, newBetOrder(w))
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(round).Error; err != nil {
			return fmt.Errorf("failed to archive round %s: %w", s.Round.RoundID, err)
		}
		if len(orders) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(orders, betOrderBatchSize).Error; err != nil {
			return fmt.Errorf("failed to archive %d bet orders of round %s: %w", len(orders), s.Round.RoundID, err)
		}
		return nil
	})
}

// RecentRounds returns archived rounds of a mode, newest first
func (a *Archive) RecentRounds(ctx context.Context, mode domain.Mode, limit int) ([]domain.Round, error) {
	var records []RoundRecord
	err := a.db.WithContext(ctx).
		Where("game_code = ? AND mode = ?", GameCode, string(mode)).
		Order("end_time DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Round, len(records))
	for i := range records {
		out[i] = records[i].toDomain()
	}
	return out, nil
}

// BetOrders returns the archived wagers of one round
func (a *Archive) BetOrders(ctx context.Context, roundID string) ([]BetOrder, error) {
	var orders []BetOrder
	err := a.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("order_id").
		Find(&orders).Error
	return orders, err
}
