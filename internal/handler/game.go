package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/game"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/service"
)

type GameHandler struct {
	games *service.GameService
}

func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

func (h *GameHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.ListOpen)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/credits", h.Credits)
		r.Post("/join", h.Join)
		r.Post("/commit", h.Commit)
		r.Post("/reveal", h.Reveal)
		r.Post("/resolve-expired", h.ResolveExpired)
		r.Post("/cancel", h.Cancel)
	})

	return r
}

type stakeRequest struct {
	Stake int64 `json:"stake"`
}

// POST /v1/sessions
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req stakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.games.CreateSession(r.Context(), player.ID, req.Stake)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, g)
}

// GET /v1/sessions
func (h *GameHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	if open := r.URL.Query().Get("open"); open != "" {
		if v, err := strconv.ParseBool(open); err != nil || !v {
			writeError(w, r, apperrors.InvalidInput("open", "only open=true listings are supported"))
			return
		}
	}

	p := ParsePagination(r)
	sessions, err := h.games.ListOpenSessions(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []model.GameSession{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  sessions,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GET /v1/sessions/{id}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// GET /v1/sessions/{id}/credits
func (h *GameHandler) Credits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.games.SessionCredits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"credits": credits})
}

// POST /v1/sessions/{id}/join
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req stakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.games.JoinSession(r.Context(), player.ID, chi.URLParam(r, "id"), req.Stake)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// POST /v1/sessions/{id}/commit
func (h *GameHandler) Commit(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Commitment string `json:"commitment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Commitment == "" {
		writeError(w, r, apperrors.MissingRequired("commitment"))
		return
	}

	g, err := h.games.CommitChoice(r.Context(), player.ID, chi.URLParam(r, "id"), req.Commitment)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// POST /v1/sessions/{id}/reveal
//
// The nonce is a decimal or 0x-prefixed hex string so that 256-bit values
// survive JSON number handling.
func (h *GameHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		Choice string `json:"choice"`
		Nonce  string `json:"nonce"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	choice, err := model.ParseChoice(req.Choice)
	if err != nil {
		writeError(w, r, apperrors.InvalidInput("choice", "must be rock, paper or scissors"))
		return
	}
	nonce, err := game.ParseNonce(req.Nonce)
	if err != nil {
		writeError(w, r, apperrors.InvalidInput("nonce", err.Error()))
		return
	}

	g, err := h.games.RevealChoice(r.Context(), player.ID, chi.URLParam(r, "id"), choice, nonce)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// POST /v1/sessions/{id}/resolve-expired
func (h *GameHandler) ResolveExpired(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	g, err := h.games.ResolveExpiredSession(r.Context(), player.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// POST /v1/sessions/{id}/cancel
func (h *GameHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	g, err := h.games.CancelSession(r.Context(), player.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}
