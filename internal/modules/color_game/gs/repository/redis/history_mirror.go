// Package redis mirrors round state and history into redis for readers
// outside this process.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

const (
	// EventsChannel carries every round event as JSON
	EventsChannel = "color_game:events"

	historyKeyFmt = "color_game:history:%s"
	clockKeyFmt   = "color_game:clock:%s"
)

// HistoryMirror writes settled rounds to a capped list per mode and publishes
// round events.
type HistoryMirror struct {
	rdb      *redis.Client
	capacity int64
}

// NewHistoryMirror creates a mirror keeping capacity rounds per mode
func NewHistoryMirror(rdb *redis.Client, capacity int) *HistoryMirror {
	return &HistoryMirror{rdb: rdb, capacity: int64(capacity)}
}

// HistoryKey is the list holding a mode's recent rounds, newest first
func HistoryKey(mode domain.Mode) string {
	return fmt.Sprintf(historyKeyFmt, mode)
}

// ClockKey holds the last published clock of a mode
func ClockKey(mode domain.Mode) string {
	return fmt.Sprintf(clockKeyFmt, mode)
}

// EventMessage is the published form of a round event
type EventMessage struct {
	Type     domain.EventType `json:"type"`
	Mode     domain.Mode      `json:"mode"`
	RoundID  string           `json:"round_id"`
	TimeLeft int              `json:"time_left"`
	Round    *domain.Round    `json:"round,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// NewEventMessage converts a round event to its published form
func NewEventMessage(e domain.RoundEvent) EventMessage {
	msg := EventMessage{
		Type:     e.Type,
		Mode:     e.Mode,
		RoundID:  e.RoundID,
		TimeLeft: e.TimeLeft,
	}
	if e.Settlement != nil {
		r := e.Settlement.Round
		msg.Round = &r
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

// SaveSettlement pushes the round onto the mode's list and trims it
func (m *HistoryMirror) SaveSettlement(ctx context.Context, s *domain.Settlement) error {
	data, err := json.Marshal(s.Round)
	if err != nil {
		return err
	}
	key := HistoryKey(s.Round.Mode)

	pipe := m.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, m.capacity-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Publish stores the clock of opened rounds and publishes the event
func (m *HistoryMirror) Publish(ctx context.Context, e domain.RoundEvent) error {
	data, err := json.Marshal(NewEventMessage(e))
	if err != nil {
		return err
	}

	pipe := m.rdb.Pipeline()
	if e.Type == domain.EventRoundOpened || e.Type == domain.EventModeHalted {
		pipe.Set(ctx, ClockKey(e.Mode), data, 0)
	}
	pipe.Publish(ctx, EventsChannel, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent reads up to limit mirrored rounds of a mode, newest first
func (m *HistoryMirror) Recent(ctx context.Context, mode domain.Mode, limit int) ([]domain.Round, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	vals, err := m.rdb.LRange(ctx, HistoryKey(mode), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Round, 0, len(vals))
	for _, v := range vals {
		var r domain.Round
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
