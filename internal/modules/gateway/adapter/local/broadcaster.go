// Package local connects in-process round events to websocket clients.
package local

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/pkg/logger"
)

// GameCode is the "game" field of every pushed message
const GameCode = "color_game"

// Sender delivers raw messages to connected clients
type Sender interface {
	Broadcast(message []byte)
	SendToUser(userID int64, message []byte)
}

// Message is the envelope pushed to websocket clients
type Message struct {
	Game    string      `json:"game"`
	Command string      `json:"command"`
	Data    interface{} `json:"data"`
}

// RoundData is the body of round lifecycle messages
type RoundData struct {
	Mode     domain.Mode    `json:"mode"`
	RoundID  string         `json:"round_id"`
	TimeLeft int            `json:"time_left"`
	Outcome  *int           `json:"outcome,omitempty"`
	Colors   []domain.Color `json:"colors,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// WagerResultData is the per-user body of a wager_result message
type WagerResultData struct {
	Mode        domain.Mode     `json:"mode"`
	RoundID     string          `json:"round_id"`
	Outcome     int             `json:"outcome"`
	Wagers      []*domain.Wager `json:"wagers"`
	TotalPayout int64           `json:"total_payout"`
}

// Broadcaster turns round events into websocket messages
type Broadcaster struct {
	sender Sender
}

func NewBroadcaster(sender Sender) *Broadcaster {
	return &Broadcaster{sender: sender}
}

// HandleEvent broadcasts the round event and, for settlements, sends each
// player the results of their own wagers
func (b *Broadcaster) HandleEvent(e domain.RoundEvent) {
	data := RoundData{
		Mode:     e.Mode,
		RoundID:  e.RoundID,
		TimeLeft: e.TimeLeft,
	}
	if e.Settlement != nil {
		outcome := e.Settlement.Round.Outcome
		data.Outcome = &outcome
		data.Colors = e.Settlement.Round.Colors
	}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}

	if msg := encode(string(e.Type), data); msg != nil {
		b.sender.Broadcast(msg)
	}

	if e.Type == domain.EventRoundSettled && e.Settlement != nil {
		b.sendResults(e.Settlement)
	}
}

func (b *Broadcaster) sendResults(s *domain.Settlement) {
	byUser := make(map[int64]*WagerResultData)
	for _, w := range s.Wagers {
		r := byUser[w.UserID]
		if r == nil {
			r = &WagerResultData{Mode: s.Round.Mode, RoundID: s.Round.RoundID, Outcome: s.Round.Outcome}
			byUser[w.UserID] = r
		}
		r.Wagers = append(r.Wagers, w)
		r.TotalPayout += w.Payout
	}

	userIDs := make([]int64, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, id := range userIDs {
		if msg := encode("wager_result", byUser[id]); msg != nil {
			b.sender.SendToUser(id, msg)
		}
	}
}

func encode(command string, data interface{}) []byte {
	msg, err := json.Marshal(Message{Game: GameCode, Command: command, Data: data})
	if err != nil {
		logger.Error(context.Background()).Err(err).Str("command", command).Msg("Failed to encode ws message")
		return nil
	}
	return msg
}

// Encode builds a reply envelope for a single client
func Encode(command string, data interface{}) []byte {
	return encode(command, data)
}
