package local

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
)

type captureSender struct {
	mu        sync.Mutex
	broadcast [][]byte
	direct    map[int64][][]byte
}

func newCaptureSender() *captureSender {
	return &captureSender{direct: make(map[int64][][]byte)}
}

func (s *captureSender) Broadcast(message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, message)
}

func (s *captureSender) SendToUser(userID int64, message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct[userID] = append(s.direct[userID], message)
}

func decode(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestBroadcastRoundOpened(t *testing.T) {
	s := newCaptureSender()
	b := NewBroadcaster(s)

	b.HandleEvent(domain.RoundEvent{Type: domain.EventRoundOpened, Mode: domain.ModeFast, RoundID: "F1", TimeLeft: 30})

	require.Len(t, s.broadcast, 1)
	m := decode(t, s.broadcast[0])
	assert.Equal(t, "color_game", m["game"])
	assert.Equal(t, "round_opened", m["command"])
	data := m["data"].(map[string]interface{})
	assert.Equal(t, "F1", data["round_id"])
	assert.Equal(t, float64(30), data["time_left"])
	assert.NotContains(t, data, "outcome")
	assert.Empty(t, s.direct)
}

func TestBroadcastSettlementSendsPerUserResults(t *testing.T) {
	s := newCaptureSender()
	b := NewBroadcaster(s)

	b.HandleEvent(domain.RoundEvent{
		Type:    domain.EventRoundSettled,
		Mode:    domain.ModeStd,
		RoundID: "S1",
		Settlement: &domain.Settlement{
			Round: domain.Round{RoundID: "S1", Mode: domain.ModeStd, Outcome: 0, Colors: domain.ColorsFor(0)},
			Wagers: []*domain.Wager{
				{ID: "a", UserID: 1, Amount: 10, Status: domain.StatusWon, Payout: 19},
				{ID: "b", UserID: 1, Amount: 10, Status: domain.StatusWon, Payout: 88},
				{ID: "c", UserID: 2, Amount: 10, Status: domain.StatusLost},
			},
		},
	})

	require.Len(t, s.broadcast, 1)
	data := decode(t, s.broadcast[0])["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["outcome"])
	assert.Equal(t, []interface{}{"red", "violet"}, data["colors"])

	require.Len(t, s.direct[1], 1)
	r1 := decode(t, s.direct[1][0])
	assert.Equal(t, "wager_result", r1["command"])
	body := r1["data"].(map[string]interface{})
	assert.Equal(t, float64(107), body["total_payout"])
	assert.Len(t, body["wagers"], 2)

	require.Len(t, s.direct[2], 1)
}

func TestBroadcastHalt(t *testing.T) {
	s := newCaptureSender()
	NewBroadcaster(s).HandleEvent(domain.RoundEvent{Type: domain.EventModeHalted, Mode: domain.ModePro, Err: errors.New("boom")})

	data := decode(t, s.broadcast[0])["data"].(map[string]interface{})
	assert.Equal(t, "boom", data["error"])
}
