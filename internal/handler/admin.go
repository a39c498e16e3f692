package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/wager-server-go/internal/audit"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/service"
)

// AdminHandler serves operator endpoints. Authentication is applied by the
// router.
type AdminHandler struct {
	stats   *service.StatsService
	players *service.PlayerService
}

func NewAdminHandler(stats *service.StatsService, players *service.PlayerService) *AdminHandler {
	return &AdminHandler{
		stats:   stats,
		players: players,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.Stats)
	r.Get("/players/{id}", h.GetPlayer)
	r.Post("/wallets/{account}/fund", h.FundWallet)

	return r
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	player, err := h.players.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wallet, err := h.players.WalletBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"player": player,
		"wallet": wallet,
	})
}

func (h *AdminHandler) FundWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, apperrors.InvalidInput("amount", "must be positive"))
		return
	}

	account := chi.URLParam(r, "account")
	funds, err := h.players.FundWallet(r.Context(), account, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Category: audit.CategorySecurity,
		Type:     audit.EventWalletFund,
		PlayerID: account,
		Amount:   req.Amount,
		Details:  map[string]interface{}{"actor": "admin"},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"wallet":  funds,
	})
}
