package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/game"
	"github.com/openclaw/wager-server-go/internal/httputil"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/middleware"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
	"github.com/openclaw/wager-server-go/internal/service"
	"github.com/openclaw/wager-server-go/internal/sse"
	"github.com/openclaw/wager-server-go/internal/testutil"
	"github.com/openclaw/wager-server-go/internal/util"
)

const (
	testWindow        = 5 * time.Minute
	testAdminPassword = "hunter2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _, _ string, limit int, window time.Duration) (bool, int, time.Time) {
	return true, limit - 1, time.Now().Add(window)
}

type api struct {
	t      *testing.T
	router http.Handler
	clock  *fakeClock
	broker *sse.Broker
}

func newAPI(t *testing.T) *api {
	t.Helper()

	db := testutil.NewDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.New("test")
	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	players := repository.NewPlayerRepository(db)
	games := repository.NewGameRepository(db)
	balances := repository.NewBalanceRepository(db)
	entries := repository.NewEntryRepository(db)
	wallet := ledger.NewWalletLedger(db, clock.Now)

	playerService := service.NewPlayerService(db, players, wallet, 0, clock)
	balanceService := service.NewBalanceService(db, balances, entries, wallet, m, clock)
	gameService := service.NewGameService(db, games, balances, entries, wallet, broker, m,
		service.GameConfig{
			MinStake:     1,
			MaxStake:     10_000,
			CommitWindow: testWindow,
			RevealWindow: testWindow,
			CancelGrace:  testWindow,
		},
		service.WithClock(clock),
	)
	statsService := service.NewStatsService(players, games, balances, entries)

	hash, err := util.HashPassword(testAdminPassword)
	require.NoError(t, err)

	playerHandler := NewPlayerHandler(playerService, balanceService)
	gameHandler := NewGameHandler(gameService)
	balanceHandler := NewBalanceHandler(balanceService)
	adminHandler := NewAdminHandler(statsService, playerService)
	authMiddleware := middleware.NewAuthMiddleware(playerService)
	registerLimit := middleware.NewIPRateLimitMiddleware(allowAll{}, 10, time.Hour, "register")

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.With(registerLimit.Handler).Post("/players", playerHandler.Register)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/me", playerHandler.Me)
			r.Mount("/sessions", gameHandler.Routes())
			r.Mount("/balance", balanceHandler.Routes())
		})
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(hash).Handler)
		r.Mount("/", adminHandler.Routes())
	})

	return &api{t: t, router: r, clock: clock, broker: broker}
}

type response struct {
	Code int
	Body map[string]any
	raw  []byte
}

func (a *api) do(method, path, token string, body any) response {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	res := response{Code: rec.Code, raw: rec.Body.Bytes()}
	_ = json.Unmarshal(rec.Body.Bytes(), &res.Body)
	return res
}

func (a *api) admin(method, path string, body any) response {
	a.t.Helper()

	var buf bytes.Buffer
	require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.SetBasicAuth(middleware.AdminUser, testAdminPassword)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	res := response{Code: rec.Code, raw: rec.Body.Bytes()}
	_ = json.Unmarshal(rec.Body.Bytes(), &res.Body)
	return res
}

// register creates a funded player and returns its id and token.
func (a *api) register(name string, funds int64) (string, string) {
	a.t.Helper()

	res := a.do("POST", "/v1/players", "", map[string]string{"name": name})
	require.Equal(a.t, http.StatusCreated, res.Code, string(res.raw))
	player := res.Body["player"].(map[string]any)
	id, token := player["id"].(string), res.Body["token"].(string)

	if funds > 0 {
		funded := a.admin("POST", "/admin/wallets/"+id+"/fund", map[string]int64{"amount": funds})
		require.Equal(a.t, http.StatusOK, funded.Code, string(funded.raw))
	}
	return id, token
}

func errorCode(res response) apperrors.ErrorCode {
	var body httputil.ErrorResponse
	_ = json.Unmarshal(res.raw, &body)
	return body.Code
}

func commitment(choice model.Choice, nonce int64, player string) string {
	return game.Commit(choice, big.NewInt(nonce), player).String()
}

func TestPlayerRoutes(t *testing.T) {
	t.Run("registers a player and returns its token once", func(t *testing.T) {
		a := newAPI(t)

		res := a.do("POST", "/v1/players", "", map[string]string{"name": "  Alice "})
		require.Equal(t, http.StatusCreated, res.Code)
		token := res.Body["token"].(string)
		assert.NotEmpty(t, token)

		me := a.do("GET", "/v1/me", token, nil)
		require.Equal(t, http.StatusOK, me.Code)
		player := me.Body["player"].(map[string]any)
		assert.Equal(t, "Alice", player["name"])
		assert.Equal(t, float64(0), me.Body["balance"])
		assert.NotContains(t, string(me.raw), "tokenHash")
	})

	t.Run("rejects a missing name", func(t *testing.T) {
		a := newAPI(t)

		res := a.do("POST", "/v1/players", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, apperrors.ErrCodeValidation, errorCode(res))
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		a := newAPI(t)

		res := a.do("POST", "/v1/players", "", map[string]string{"name": "alice", "admin": "true"})
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("requires a bearer token", func(t *testing.T) {
		a := newAPI(t)

		res := a.do("GET", "/v1/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)

		res = a.do("GET", "/v1/me", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestSessionRoutes(t *testing.T) {
	t.Run("plays a full wager over http", func(t *testing.T) {
		a := newAPI(t)
		alice, aliceToken := a.register("alice", 500)
		bob, bobToken := a.register("bob", 500)

		res := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 100})
		require.Equal(t, http.StatusCreated, res.Code, string(res.raw))
		id := res.Body["id"].(string)
		assert.Equal(t, "created", res.Body["phase"])

		lobby := a.do("GET", "/v1/sessions?open=true", bobToken, nil)
		require.Equal(t, http.StatusOK, lobby.Code)
		assert.Len(t, lobby.Body["items"], 1)

		res = a.do("POST", "/v1/sessions/"+id+"/join", bobToken, map[string]int64{"stake": 100})
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, "committing", res.Body["phase"])

		res = a.do("POST", "/v1/sessions/"+id+"/commit", aliceToken,
			map[string]string{"commitment": commitment(model.ChoicePaper, 11, alice)})
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		res = a.do("POST", "/v1/sessions/"+id+"/commit", bobToken,
			map[string]string{"commitment": commitment(model.ChoiceRock, 22, bob)})
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, "revealing", res.Body["phase"])

		res = a.do("POST", "/v1/sessions/"+id+"/reveal", aliceToken,
			map[string]string{"choice": "paper", "nonce": "11"})
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		res = a.do("POST", "/v1/sessions/"+id+"/reveal", bobToken,
			map[string]string{"choice": "rock", "nonce": "0x16"})
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, "resolved", res.Body["phase"])
		assert.Equal(t, "player1_wins", res.Body["result"])
		assert.Equal(t, true, res.Body["fundsDistributed"])

		credits := a.do("GET", "/v1/sessions/"+id+"/credits", bobToken, nil)
		require.Equal(t, http.StatusOK, credits.Code)
		assert.Equal(t, map[string]any{alice: float64(200)}, credits.Body["credits"])

		balance := a.do("GET", "/v1/balance", aliceToken, nil)
		assert.Equal(t, float64(200), balance.Body["balance"])

		res = a.do("POST", "/v1/balance/withdraw", aliceToken, nil)
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, float64(200), res.Body["withdrawn"])

		me := a.do("GET", "/v1/me", aliceToken, nil)
		assert.Equal(t, float64(0), me.Body["balance"])
		assert.Equal(t, float64(600), me.Body["wallet"])

		history := a.do("GET", "/v1/balance/history", aliceToken, nil)
		require.Equal(t, http.StatusOK, history.Code)
		assert.Len(t, history.Body["items"], 3)
	})

	t.Run("maps session errors to statuses", func(t *testing.T) {
		a := newAPI(t)
		alice, aliceToken := a.register("alice", 500)
		_, bobToken := a.register("bob", 500)

		res := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 100})
		require.Equal(t, http.StatusCreated, res.Code)
		id := res.Body["id"].(string)

		self := a.do("POST", "/v1/sessions/"+id+"/join", aliceToken, map[string]int64{"stake": 100})
		assert.Equal(t, http.StatusForbidden, self.Code)

		mismatch := a.do("POST", "/v1/sessions/"+id+"/join", bobToken, map[string]int64{"stake": 99})
		assert.Equal(t, http.StatusBadRequest, mismatch.Code)

		early := a.do("POST", "/v1/sessions/"+id+"/commit", aliceToken,
			map[string]string{"commitment": commitment(model.ChoiceRock, 1, alice)})
		assert.Equal(t, http.StatusConflict, early.Code)
		assert.Equal(t, apperrors.ErrCodeState, errorCode(early))

		missing := a.do("GET", "/v1/sessions/does-not-exist", aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, missing.Code)

		broke := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 10_000})
		assert.Equal(t, http.StatusBadRequest, broke.Code)
		assert.Equal(t, apperrors.ErrCodeInsufficientFunds, errorCode(broke))

		listing := a.do("GET", "/v1/sessions?open=false", aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, listing.Code)
	})

	t.Run("rejects a reveal that does not open the commitment", func(t *testing.T) {
		a := newAPI(t)
		alice, aliceToken := a.register("alice", 500)
		bob, bobToken := a.register("bob", 500)

		res := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 10})
		id := res.Body["id"].(string)
		a.do("POST", "/v1/sessions/"+id+"/join", bobToken, map[string]int64{"stake": 10})
		a.do("POST", "/v1/sessions/"+id+"/commit", aliceToken,
			map[string]string{"commitment": commitment(model.ChoiceRock, 1, alice)})
		a.do("POST", "/v1/sessions/"+id+"/commit", bobToken,
			map[string]string{"commitment": commitment(model.ChoiceRock, 2, bob)})

		wrong := a.do("POST", "/v1/sessions/"+id+"/reveal", aliceToken,
			map[string]string{"choice": "paper", "nonce": "1"})
		assert.Equal(t, http.StatusUnprocessableEntity, wrong.Code)
		assert.Equal(t, apperrors.ErrCodeReplay, errorCode(wrong))

		garbage := a.do("POST", "/v1/sessions/"+id+"/reveal", aliceToken,
			map[string]string{"choice": "lizard", "nonce": "1"})
		assert.Equal(t, http.StatusBadRequest, garbage.Code)

		badNonce := a.do("POST", "/v1/sessions/"+id+"/reveal", aliceToken,
			map[string]string{"choice": "rock", "nonce": "-1"})
		assert.Equal(t, http.StatusBadRequest, badNonce.Code)
	})

	t.Run("anyone may sweep an expired session", func(t *testing.T) {
		a := newAPI(t)
		_, aliceToken := a.register("alice", 500)
		_, bobToken := a.register("bob", 500)
		_, carolToken := a.register("carol", 0)

		res := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 50})
		id := res.Body["id"].(string)
		a.do("POST", "/v1/sessions/"+id+"/join", bobToken, map[string]int64{"stake": 50})

		early := a.do("POST", "/v1/sessions/"+id+"/resolve-expired", carolToken, nil)
		assert.Equal(t, http.StatusGone, early.Code)

		a.clock.Advance(testWindow + time.Second)
		res = a.do("POST", "/v1/sessions/"+id+"/resolve-expired", carolToken, nil)
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, "expired", res.Body["result"])

		again := a.do("POST", "/v1/sessions/"+id+"/resolve-expired", carolToken, nil)
		assert.Equal(t, http.StatusConflict, again.Code)

		balance := a.do("GET", "/v1/balance", aliceToken, nil)
		assert.Equal(t, float64(50), balance.Body["balance"])
	})

	t.Run("creator cancels after the grace period", func(t *testing.T) {
		a := newAPI(t)
		_, aliceToken := a.register("alice", 500)
		_, bobToken := a.register("bob", 500)

		res := a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 50})
		id := res.Body["id"].(string)

		early := a.do("POST", "/v1/sessions/"+id+"/cancel", aliceToken, nil)
		assert.Equal(t, http.StatusGone, early.Code)

		a.clock.Advance(testWindow)
		stranger := a.do("POST", "/v1/sessions/"+id+"/cancel", bobToken, nil)
		assert.Equal(t, http.StatusForbidden, stranger.Code)

		res = a.do("POST", "/v1/sessions/"+id+"/cancel", aliceToken, nil)
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, true, res.Body["completed"])
	})
}

func TestBalanceRoutes(t *testing.T) {
	t.Run("withdrawing nothing is a validation error", func(t *testing.T) {
		a := newAPI(t)
		_, token := a.register("alice", 0)

		res := a.do("POST", "/v1/balance/withdraw", token, nil)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, apperrors.ErrCodeValidation, errorCode(res))
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Run("reports stats", func(t *testing.T) {
		a := newAPI(t)
		_, aliceToken := a.register("alice", 500)
		a.do("POST", "/v1/sessions", aliceToken, map[string]int64{"stake": 40})

		res := a.admin("GET", "/admin/stats", nil)
		require.Equal(t, http.StatusOK, res.Code, string(res.raw))
		assert.Equal(t, float64(1), res.Body["players"])
		assert.Equal(t, float64(40), res.Body["escrowed"])
	})

	t.Run("rejects funding unknown players", func(t *testing.T) {
		a := newAPI(t)

		res := a.admin("POST", "/admin/wallets/nobody/fund", map[string]int64{"amount": 10})
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		a := newAPI(t)
		id, _ := a.register("alice", 0)

		res := a.admin("POST", "/admin/wallets/"+id+"/fund", map[string]int64{"amount": 0})
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("requires basic auth", func(t *testing.T) {
		a := newAPI(t)

		res := a.do("GET", "/admin/stats", "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}
