package domain

import (
	"fmt"
	"time"
)

// Phase is the betting phase of a mode's current round
type Phase string

const (
	PhaseOpen     Phase = "OPEN"
	PhaseLocked   Phase = "LOCKED"
	PhaseSettling Phase = "SETTLING"
)

// DefaultLockThreshold is how many final seconds of a round reject wagers
const DefaultLockThreshold = 5

// PhaseFor derives the phase of a counting-down round. The round is OPEN while
// more than lockThreshold seconds remain.
func PhaseFor(timeLeft, lockThreshold int) Phase {
	if timeLeft > lockThreshold {
		return PhaseOpen
	}
	return PhaseLocked
}

// RoundIDFor derives the label of the round slot containing t for mode m:
// YYYYMMDD, the mode letter, then the slot index since local midnight padded
// to four digits. Slot indexes above 9999 are printed in full.
func RoundIDFor(t time.Time, m Mode) string {
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	slot := 0
	if d := m.Seconds(); d > 0 {
		slot = secs / d
	}
	return fmt.Sprintf("%s%s%04d", t.Format("20060102"), m.Letter(), slot)
}

// Round is a finalized round kept in history
type Round struct {
	RoundID     string    `json:"round_id"`
	Mode        Mode      `json:"mode"`
	Outcome     int       `json:"outcome"`
	Colors      []Color   `json:"colors"`
	Forced      bool      `json:"forced"`
	TotalWagers int       `json:"total_wagers"`
	TotalStake  int64     `json:"total_stake"`
	TotalPayout int64     `json:"total_payout"`
	SettledAt   time.Time `json:"settled_at"`
}

// ClockView is a read-only snapshot of a mode's clock
type ClockView struct {
	Mode     Mode   `json:"mode"`
	RoundID  string `json:"round_id"`
	TimeLeft int    `json:"time_left"`
	Phase    Phase  `json:"phase"`
	Halted   bool   `json:"halted"`
}
