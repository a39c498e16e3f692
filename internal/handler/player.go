package handler

import (
	"net/http"

	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/middleware"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/service"
)

type PlayerHandler struct {
	players  *service.PlayerService
	balances *service.BalanceService
}

func NewPlayerHandler(players *service.PlayerService, balances *service.BalanceService) *PlayerHandler {
	return &PlayerHandler{
		players:  players,
		balances: balances,
	}
}

// POST /v1/players
func (h *PlayerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, apperrors.MissingRequired("name"))
		return
	}

	player, token, err := h.players.Register(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"player": player,
		"token":  token,
	})
}

// GET /v1/me
func (h *PlayerHandler) Me(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	balance, err := h.balances.GetBalance(r.Context(), player.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wallet, err := h.players.WalletBalance(r.Context(), player.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"player":  player,
		"balance": balance,
		"wallet":  wallet,
	})
}

func requireCaller(w http.ResponseWriter, r *http.Request) (*model.Player, bool) {
	player := middleware.GetPlayer(r.Context())
	if player == nil {
		writeError(w, r, apperrors.Unauthorized("Unauthorized"))
		return nil, false
	}
	return player, true
}
