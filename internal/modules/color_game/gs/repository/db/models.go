package db

import (
	"strings"
	"time"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

// GameCode tags every archived row of this game
const GameCode = "color_game"

// RoundRecord is a settled round row
type RoundRecord struct {
	RoundID        string    `gorm:"primaryKey;type:varchar(64)" json:"round_id"`
	GameCode       string    `gorm:"index;type:varchar(32);not null" json:"game_code"`
	Mode           string    `gorm:"index:idx_game_rounds_mode_end;type:varchar(8);not null" json:"mode"`
	Outcome        int       `gorm:"type:int;not null" json:"outcome"`
	Colors         string    `gorm:"type:varchar(32);not null" json:"colors"` // comma separated
	Forced         bool      `gorm:"not null;default:false" json:"forced"`
	TotalBets      int       `gorm:"default:0" json:"total_bets"`
	TotalPlayers   int       `gorm:"default:0" json:"total_players"`
	TotalBetAmount int64     `gorm:"default:0" json:"total_bet_amount"`
	TotalPayout    int64     `gorm:"default:0" json:"total_payout"`
	EndTime        time.Time `gorm:"index:idx_game_rounds_mode_end;not null" json:"end_time"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false" json:"created_at"`
}

// TableName overrides the table name
func (RoundRecord) TableName() string {
	return "game_rounds"
}

// Wager status codes stored in bet_orders.status
const (
	BetOrderStatusPending = 0
	BetOrderStatusWon     = 1
	BetOrderStatusLost    = 2
)

// BetOrder is a settled wager row
type BetOrder struct {
	OrderID   string     `gorm:"primaryKey;type:varchar(64)" json:"order_id"`
	UserID    int64      `gorm:"not null;index:idx_bet_orders_user_id" json:"user_id"`
	RoundID   string     `gorm:"type:varchar(64);not null;index:idx_bet_orders_round_id" json:"round_id"`
	GameCode  string     `gorm:"type:varchar(32);not null;index:idx_bet_orders_game_code" json:"game_code"`
	Mode      string     `gorm:"type:varchar(8);not null" json:"mode"`
	BetArea   string     `gorm:"type:varchar(32);not null" json:"bet_area"` // "COLOR:red", "NUMBER:7"
	Amount    int64      `gorm:"not null" json:"amount"`
	Payout    int64      `gorm:"not null;default:0" json:"payout"`
	Status    int        `gorm:"type:int;not null;default:0;index:idx_bet_orders_status" json:"status"`
	CreatedAt time.Time  `gorm:"not null;index:idx_bet_orders_created_at" json:"created_at"`
	SettledAt *time.Time `json:"settled_at"`
}

// TableName overrides the table name
func (BetOrder) TableName() string {
	return "bet_orders"
}

func newRoundRecord(s *domain.Settlement, now time.Time) *RoundRecord {
	players := make(map[int64]struct{}, len(s.Wagers))
	for _, w := range s.Wagers {
		players[w.UserID] = struct{}{}
	}
	colors := make([]string, len(s.Round.Colors))
	for i, c := range s.Round.Colors {
		colors[i] = string(c)
	}
	return &RoundRecord{
		RoundID:        s.Round.RoundID,
		GameCode:       GameCode,
		Mode:           string(s.Round.Mode),
		Outcome:        s.Round.Outcome,
		Colors:         strings.Join(colors, ","),
		Forced:         s.Round.Forced,
		TotalBets:      s.Round.TotalWagers,
		TotalPlayers:   len(players),
		TotalBetAmount: s.Round.TotalStake,
		TotalPayout:    s.Round.TotalPayout,
		EndTime:        s.Round.SettledAt,
		CreatedAt:      now,
	}
}

func (r *RoundRecord) toDomain() domain.Round {
	var colors []domain.Color
	for _, c := range strings.Split(r.Colors, ",") {
		if c != "" {
			colors = append(colors, domain.Color(c))
		}
	}
	return domain.Round{
		RoundID:     r.RoundID,
		Mode:        domain.Mode(r.Mode),
		Outcome:     r.Outcome,
		Colors:      colors,
		Forced:      r.Forced,
		TotalWagers: r.TotalBets,
		TotalStake:  r.TotalBetAmount,
		TotalPayout: r.TotalPayout,
		SettledAt:   r.EndTime,
	}
}

func newBetOrder(w *domain.Wager) *BetOrder {
	status := BetOrderStatusPending
	switch w.Status {
	case domain.StatusWon:
		status = BetOrderStatusWon
	case domain.StatusLost:
		status = BetOrderStatusLost
	}
	return &BetOrder{
		OrderID:   w.ID,
		UserID:    w.UserID,
		RoundID:   w.RoundID,
		GameCode:  GameCode,
		Mode:      string(w.Mode),
		BetArea:   string(w.Kind) + ":" + w.Selection,
		Amount:    w.Amount,
		Payout:    w.Payout,
		Status:    status,
		CreatedAt: w.PlacedAt,
		SettledAt: w.SettledAt,
	}
}
