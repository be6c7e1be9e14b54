// Package http serves the player websocket endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/internal/modules/color_game/gs/usecase"
	"github.com/frankieli/color_wager/internal/modules/gateway/adapter/local"
	"github.com/frankieli/color_wager/internal/modules/gateway/ws"
	"github.com/frankieli/color_wager/pkg/auth"
	"github.com/frankieli/color_wager/pkg/logger"
)

// WagerService is what websocket clients can call
type WagerService interface {
	Submit(ctx context.Context, req usecase.SubmitRequest) (*domain.Wager, error)
	CurrentRound(ctx context.Context, mode domain.Mode) (domain.ClockView, error)
}

// Handler handles websocket requests
type Handler struct {
	wagers  WagerService
	manager *ws.Manager
	auth    *auth.Authenticator
}

// NewHandler creates a websocket handler
func NewHandler(wagers WagerService, manager *ws.Manager, authenticator *auth.Authenticator) *Handler {
	return &Handler{
		wagers:  wagers,
		manager: manager,
		auth:    authenticator,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is a request from a websocket client
type clientMessage struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

type placeWagerData struct {
	Mode      string `json:"mode"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Selection string `json:"selection"`
}

type getRoundData struct {
	Mode string `json:"mode"`
}

type errorData struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// HandleWebSocket authenticates and upgrades a player connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WebSocketContext(r)
	requestID := logger.GetRequestID(ctx)

	claims, err := h.auth.Parse(auth.BearerToken(r))
	if err != nil {
		logger.Warn(ctx).Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket token rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	logger.Info(ctx).
		Int64("user_id", claims.UserID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connected")

	client := h.manager.Register(conn, claims.UserID)
	go client.WritePump()
	go client.ReadPump(func(userID int64, message []byte) {
		msgCtx := logger.WithRequestID(context.Background(), logger.GenerateRequestID())
		msgCtx = logger.WithFields(msgCtx, map[string]interface{}{
			"user_id":       userID,
			"ws_request_id": requestID,
		})
		if reply := h.HandleMessage(msgCtx, userID, message); reply != nil {
			h.manager.SendToUser(userID, reply)
		}
	})
}

// HandleMessage dispatches one client message and returns the reply
func (h *Handler) HandleMessage(ctx context.Context, userID int64, message []byte) []byte {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return local.Encode("error", errorData{Error: "malformed message"})
	}

	logger.Debug(ctx).Str("command", msg.Command).Int("message_size", len(message)).Msg("WebSocket message received")

	switch msg.Command {
	case "place_wager":
		var d placeWagerData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return local.Encode("place_wager_failed", errorData{Error: "malformed data"})
		}
		mode, err := domain.ParseMode(d.Mode)
		if err != nil {
			return local.Encode("place_wager_failed", errorData{Error: err.Error(), Reason: usecase.RejectReason(err)})
		}
		wager, err := h.wagers.Submit(ctx, usecase.SubmitRequest{
			UserID:    userID,
			Mode:      mode,
			Amount:    d.Amount,
			Kind:      domain.WagerKind(d.Kind),
			Selection: d.Selection,
		})
		if err != nil {
			return local.Encode("place_wager_failed", errorData{Error: publicError(err), Reason: usecase.RejectReason(err)})
		}
		return local.Encode("wager_placed", wager)

	case "get_round":
		var d getRoundData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return local.Encode("error", errorData{Error: "malformed data"})
		}
		mode, err := domain.ParseMode(d.Mode)
		if err != nil {
			return local.Encode("error", errorData{Error: err.Error()})
		}
		view, err := h.wagers.CurrentRound(ctx, mode)
		if err != nil {
			return local.Encode("error", errorData{Error: publicError(err)})
		}
		return local.Encode("round", view)

	default:
		return local.Encode("error", errorData{Error: fmt.Sprintf("unknown command %q", msg.Command)})
	}
}

// publicError hides internal failures from clients
func publicError(err error) string {
	if domain.IsValidation(err) || domain.IsPolicy(err) {
		return err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	return "internal error"
}
