package domain

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// WagerKind is what a wager is placed on
type WagerKind string

const (
	KindColor  WagerKind = "COLOR"
	KindNumber WagerKind = "NUMBER"
)

// WagerStatus is the settlement status of a wager
type WagerStatus string

const (
	StatusPending WagerStatus = "PENDING"
	StatusWon     WagerStatus = "WON"
	StatusLost    WagerStatus = "LOST"
)

// Terminal reports whether the status is final
func (s WagerStatus) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Wager is a user's stake on a color or digit for one round
type Wager struct {
	ID        string      `json:"id"`
	UserID    int64       `json:"user_id"`
	Mode      Mode        `json:"mode"`
	RoundID   string      `json:"round_id"`
	Amount    int64       `json:"amount"`
	Kind      WagerKind   `json:"kind"`
	Selection string      `json:"selection"` // color name for COLOR, "0".."9" for NUMBER
	Status    WagerStatus `json:"status"`
	Payout    int64       `json:"payout"`
	PlacedAt  time.Time   `json:"placed_at"`
	SettledAt *time.Time  `json:"settled_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with w
func (w *Wager) Clone() *Wager {
	cp := *w
	if w.SettledAt != nil {
		t := *w.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

// Wins reports whether the wager wins against the outcome
func (w *Wager) Wins(outcome int, colors []Color) bool {
	switch w.Kind {
	case KindNumber:
		return w.Selection == strconv.Itoa(outcome)
	case KindColor:
		return HasColor(colors, Color(w.Selection))
	}
	return false
}

// NormalizeSelection validates selection for kind and returns its canonical
// form.
func NormalizeSelection(kind WagerKind, selection string) (string, error) {
	switch kind {
	case KindColor:
		c, err := ParseColor(selection)
		if err != nil {
			return "", err
		}
		return string(c), nil
	case KindNumber:
		d, err := strconv.Atoi(selection)
		if err != nil || d < 0 || d > 9 {
			return "", fmt.Errorf("%w: number selection must be a digit 0-9, got %q", ErrInvalidSelection, selection)
		}
		return strconv.Itoa(d), nil
	}
	return "", fmt.Errorf("%w: unknown wager kind %q", ErrInvalidSelection, kind)
}

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	nodeID   int64 = 1
)

// SetWagerNode sets the snowflake node used for wager ids. It must be called
// before the first wager is created to take effect.
func SetWagerNode(id int64) error {
	if id < 0 || id > 1023 {
		return fmt.Errorf("snowflake node id %d out of range 0-1023", id)
	}
	nodeID = id
	return nil
}

// NewWagerID returns a unique, time-ordered wager id
func NewWagerID() string {
	nodeOnce.Do(func() {
		var err error
		node, err = snowflake.NewNode(nodeID)
		if err != nil {
			panic(err)
		}
	})
	return node.Generate().String()
}
