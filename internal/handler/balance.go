package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/service"
)

type BalanceHandler struct {
	balances *service.BalanceService
}

func NewBalanceHandler(balances *service.BalanceService) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

func (h *BalanceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Get)
	r.Get("/history", h.History)
	r.Post("/withdraw", h.Withdraw)

	return r
}

// GET /v1/balance
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	amount, err := h.balances.GetBalance(r.Context(), player.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": player.ID,
		"balance": amount,
	})
}

// GET /v1/balance/history
func (h *BalanceHandler) History(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	p := ParsePagination(r)
	entries, err := h.balances.History(r.Context(), player.ID, p.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// POST /v1/balance/withdraw
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	amount, err := h.balances.Withdraw(r.Context(), player.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":   player.ID,
		"withdrawn": amount,
		"balance":   0,
	})
}
