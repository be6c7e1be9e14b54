// Package http exposes the color game over a gin JSON API.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frankieli/color_wager/internal/modules/color_game/domain"
	"github.com/frankieli/color_wager/internal/modules/color_game/gs/usecase"
	"github.com/frankieli/color_wager/pkg/auth"
	"github.com/frankieli/color_wager/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	defaultWagerLimit   = 20
	maxWagerLimit       = 200
)

// Handler handles HTTP requests for the color game
type Handler struct {
	wagers   *usecase.WagerUseCase
	operator *usecase.OperatorUseCase
	auth     *auth.Authenticator
}

// NewHandler creates a new HTTP handler
func NewHandler(wagers *usecase.WagerUseCase, operator *usecase.OperatorUseCase, authenticator *auth.Authenticator) *Handler {
	return &Handler{
		wagers:   wagers,
		operator: operator,
		auth:     authenticator,
	}
}

// RegisterRoutes registers all color game routes under api
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/rounds/:mode", h.CurrentRound)
	api.GET("/history/:mode", h.History)

	player := api.Group("", h.auth.Middleware())
	player.POST("/wagers", h.SubmitWager)
	player.GET("/users/:id", h.Account)
	player.GET("/users/:id/wagers", h.RecentWagers)

	admin := api.Group("/admin", h.auth.Middleware(auth.RoleOperator))
	admin.POST("/override", h.SetOverride)
	admin.GET("/rounds/:mode/distribution", h.Distribution)
	admin.GET("/stats", h.Stats)
	admin.PUT("/users/:id/balance", h.SetBalance)
	admin.PUT("/users/:id/blocked", h.SetBlocked)
}

// DTOs
type submitWagerRequest struct {
	Mode      string `json:"mode" binding:"required"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind" binding:"required"`
	Selection string `json:"selection" binding:"required"`
}

type overrideRequest struct {
	Mode  string `json:"mode" binding:"required"`
	Digit *int   `json:"digit" binding:"required"`
}

type balanceRequest struct {
	Balance *int64 `json:"balance" binding:"required"`
}

type blockedRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

// statusFor maps an error class to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownUser):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsPolicy(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context()).Err(err).Str("path", c.FullPath()).Msg("Request failed")
		msg = "internal error"
	}
	body := gin.H{"error": msg}
	if c.FullPath() == "/api/wagers" {
		body["reason"] = usecase.RejectReason(err)
	}
	c.JSON(status, body)
}

func parseMode(c *gin.Context) (domain.Mode, bool) {
	mode, err := domain.ParseMode(c.Param("mode"))
	if err != nil {
		writeError(c, err)
		return "", false
	}
	return mode, true
}

func parseLimit(c *gin.Context, fallback, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// userParam resolves :id and lets players read only their own records
func userParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	claims, ok := auth.FromGin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrMissingToken.Error()})
		return 0, false
	}
	if claims.Role != auth.RoleOperator && claims.UserID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": auth.ErrForbidden.Error()})
		return 0, false
	}
	return id, true
}

// SubmitWager places a wager for the authenticated player
func (h *Handler) SubmitWager(c *gin.Context) {
	claims, _ := auth.FromGin(c)

	var req submitWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn(c.Request.Context()).Err(err).Msg("SubmitWager: invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "invalid_request"})
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}

	wager, err := h.wagers.Submit(c.Request.Context(), usecase.SubmitRequest{
		UserID:    claims.UserID,
		Mode:      mode,
		Amount:    req.Amount,
		Kind:      domain.WagerKind(req.Kind),
		Selection: req.Selection,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wager)
}

// CurrentRound returns the clock of a mode
func (h *Handler) CurrentRound(c *gin.Context) {
	mode, ok := parseMode(c)
	if !ok {
		return
	}
	view, err := h.wagers.CurrentRound(c.Request.Context(), mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// History returns recent finalized rounds of a mode
func (h *Handler) History(c *gin.Context) {
	mode, ok := parseMode(c)
	if !ok {
		return
	}
	rounds, err := h.wagers.History(c.Request.Context(), mode, parseLimit(c, defaultHistoryLimit, defaultHistoryLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode, "rounds": rounds})
}

// Account returns a balance record
func (h *Handler) Account(c *gin.Context) {
	id, ok := userParam(c)
	if !ok {
		return
	}
	acc, err := h.wagers.Account(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// RecentWagers returns a user's latest wagers
func (h *Handler) RecentWagers(c *gin.Context) {
	id, ok := userParam(c)
	if !ok {
		return
	}
	wagers, err := h.wagers.RecentWagers(c.Request.Context(), id, parseLimit(c, defaultWagerLimit, maxWagerLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "wagers": wagers})
}

// SetOverride forces the next outcome of a mode
func (h *Handler) SetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.operator.SetOverride(c.Request.Context(), mode, *req.Digit); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode, "digit": *req.Digit})
}

// Distribution returns the live pending totals of a mode
func (h *Handler) Distribution(c *gin.Context) {
	mode, ok := parseMode(c)
	if !ok {
		return
	}
	d, err := h.operator.Distribution(c.Request.Context(), mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Stats returns the operator dashboard summary
func (h *Handler) Stats(c *gin.Context) {
	s, err := h.operator.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// SetBalance overwrites a user's balance
func (h *Handler) SetBalance(c *gin.Context) {
	id, ok := userParam(c)
	if !ok {
		return
	}
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acc, err := h.operator.SetBalance(c.Request.Context(), id, *req.Balance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// SetBlocked blocks or unblocks a user
func (h *Handler) SetBlocked(c *gin.Context) {
	id, ok := userParam(c)
	if !ok {
		return
	}
	var req blockedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acc, err := h.operator.SetBlocked(c.Request.Context(), id, *req.Blocked)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}
