package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frankieli/color_wager/pkg/auth"
	"github.com/frankieli/color_wager/pkg/logger"
)

// Config holds the robot configuration
type Config struct {
	Host      string
	UserCount int
	Secret    string
	Mode      string
	BetMin    int
	BetMax    int
}

// Robot is a simulated player. Its account must exist, e.g. seeded with
// SEED_PLAYERS on the server.
type Robot struct {
	ID     int64
	Host   string
	Mode   string
	Token  string
	Conn   *websocket.Conn
	Done   chan struct{}
	cfg    Config
	ctx    context.Context
	sendMu sync.Mutex
}

type serverMessage struct {
	Game    string          `json:"game"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

type roundData struct {
	Mode     string `json:"mode"`
	RoundID  string `json:"round_id"`
	TimeLeft int    `json:"time_left"`
	Outcome  *int   `json:"outcome"`
}

func main() {
	host := flag.String("host", "localhost:8080", "Server host address")
	users := flag.Int("users", 100, "Number of concurrent users (ids 1..N)")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret shared with the server")
	mode := flag.String("mode", "FAST", "Game mode to play")
	flag.Parse()

	cfg := Config{
		Host:      *host,
		UserCount: *users,
		Secret:    *secret,
		Mode:      *mode,
		BetMin:    10,
		BetMax:    100,
	}

	logger.Init(logger.Config{
		Level:  "info",
		Format: "console",
	})
	defer logger.Flush()

	ctx := context.Background()
	logger.Info(ctx).
		Int("users", cfg.UserCount).
		Str("host", cfg.Host).
		Str("mode", cfg.Mode).
		Msg("🤖 Starting Test Robot")

	authenticator := auth.NewAuthenticator(cfg.Secret, 24*time.Hour)

	for i := 1; i <= cfg.UserCount; i++ {
		time.Sleep(20 * time.Millisecond)
		token, _, err := authenticator.Issue(int64(i), auth.RolePlayer)
		if err != nil {
			logger.Fatal(ctx).Err(err).Msg("Failed to issue robot token")
		}
		go func(robot *Robot) {
			if err := robot.Run(); err != nil {
				logger.Error(ctx).Int64("robot_id", robot.ID).Err(err).Msg("Robot failed")
			}
		}(NewRobot(int64(i), token, cfg))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	logger.Info(ctx).Msg("🛑 Stopping robots...")
}

func NewRobot(id int64, token string, cfg Config) *Robot {
	return &Robot{
		ID:    id,
		Host:  cfg.Host,
		Mode:  cfg.Mode,
		Token: token,
		Done:  make(chan struct{}),
		cfg:   cfg,
		ctx:   context.Background(),
	}
}

func (r *Robot) Run() error {
	if err := r.CheckBalance(); err != nil {
		return fmt.Errorf("account check failed: %w", err)
	}

	if err := r.ConnectWS(); err != nil {
		return fmt.Errorf("websocket connect failed: %w", err)
	}
	defer r.Conn.Close()
	logger.Info(r.ctx).Int64("robot_id", r.ID).Msg("Robot connected to WebSocket")

	r.send(map[string]interface{}{"command": "get_round", "data": map[string]string{"mode": r.Mode}})

	go r.ListenLoop()
	<-r.Done
	return nil
}

// CheckBalance reads the robot's account over the REST API
func (r *Robot) CheckBalance() error {
	u := url.URL{Scheme: "http", Host: r.Host, Path: fmt.Sprintf("/api/users/%d", r.ID)}
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var acc struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return err
	}
	logger.Info(r.ctx).Int64("robot_id", r.ID).Int64("balance", acc.Balance).Msg("Robot balance")
	return nil
}

func (r *Robot) ConnectWS() error {
	u := url.URL{Scheme: "ws", Host: r.Host, Path: "/ws", RawQuery: "token=" + r.Token}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	r.Conn = c
	return nil
}

func (r *Robot) send(v interface{}) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if err := r.Conn.WriteJSON(v); err != nil {
		logger.Error(r.ctx).Int64("robot_id", r.ID).Err(err).Msg("Failed to send")
	}
}

func (r *Robot) ListenLoop() {
	defer close(r.Done)

	for {
		_, message, err := r.Conn.ReadMessage()
		if err != nil {
			logger.Error(r.ctx).Int64("robot_id", r.ID).Err(err).Msg("Read error")
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn(r.ctx).Int64("robot_id", r.ID).Err(err).Msg("Failed to parse message")
			continue
		}

		switch msg.Command {
		case "round_opened", "round":
			var data roundData
			if err := json.Unmarshal(msg.Data, &data); err != nil || data.Mode != r.Mode {
				continue
			}
			go r.PlaceWager(data.RoundID, data.TimeLeft)
		case "round_settled":
			var data roundData
			if err := json.Unmarshal(msg.Data, &data); err == nil && data.Mode == r.Mode && data.Outcome != nil {
				logger.Info(r.ctx).Int64("robot_id", r.ID).Str("round_id", data.RoundID).Int("outcome", *data.Outcome).Msg("Saw result")
			}
		case "wager_result":
			logger.Info(r.ctx).Int64("robot_id", r.ID).RawJSON("data", msg.Data).Msg("Received settlement")
		case "place_wager_failed":
			logger.Warn(r.ctx).Int64("robot_id", r.ID).RawJSON("data", msg.Data).Msg("Wager rejected")
		}
	}
}

func (r *Robot) PlaceWager(roundID string, timeLeft int) {
	// Spread wagers over the open window
	window := timeLeft - 6
	if window < 1 {
		return
	}
	time.Sleep(time.Duration(rand.IntN(window*1000)) * time.Millisecond)

	amount := r.cfg.BetMin + rand.IntN(r.cfg.BetMax-r.cfg.BetMin+1)
	kind, selection := "COLOR", []string{"red", "green", "violet"}[rand.IntN(3)]
	if rand.IntN(4) == 0 {
		kind, selection = "NUMBER", fmt.Sprint(rand.IntN(10))
	}

	r.send(map[string]interface{}{
		"command": "place_wager",
		"data": map[string]interface{}{
			"mode":      r.Mode,
			"amount":    amount,
			"kind":      kind,
			"selection": selection,
		},
	})

	logger.Info(r.ctx).
		Int64("robot_id", r.ID).
		Int("amount", amount).
		Str("kind", kind).
		Str("selection", selection).
		Str("round_id", roundID).
		Msg("Placed wager")
}
