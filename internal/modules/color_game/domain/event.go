package domain

// EventType identifies a round lifecycle event
type EventType string

const (
	EventRoundOpened  EventType = "round_opened"
	EventRoundLocked  EventType = "round_locked"
	EventRoundSettled EventType = "round_settled"
	EventModeHalted   EventType = "mode_halted"
)

// RoundEvent is emitted by the scheduler on phase changes
type RoundEvent struct {
	Type     EventType
	Mode     Mode
	RoundID  string
	TimeLeft int
	// Set on EventRoundSettled only
	Settlement *Settlement
	// Set on EventModeHalted only
	Err error
}

// Settlement is the result of settling one round
type Settlement struct {
	Round  Round
	Wagers []*Wager
}

// EventHandler receives round events
type EventHandler func(event RoundEvent)
