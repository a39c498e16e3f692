package service

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/game"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
	"github.com/openclaw/wager-server-go/internal/sse"
	"github.com/openclaw/wager-server-go/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	window        = 5 * time.Minute
	startingFunds = 1000
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

type published struct {
	PlayerID string
	Event    sse.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, playerID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{PlayerID: playerID, Event: event})
	return nil
}

func (p *recordingPublisher) typesFor(playerID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.events {
		if e.PlayerID == playerID {
			types = append(types, e.Event.Type)
		}
	}
	return types
}

func (p *recordingPublisher) last(playerID, eventType string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		e := p.events[i]
		if e.PlayerID == playerID && e.Event.Type == eventType {
			var out map[string]any
			_ = json.Unmarshal(e.Event.Data, &out)
			return out
		}
	}
	return nil
}

type harness struct {
	db       *database.DB
	clock    *fakeClock
	pub      *recordingPublisher
	wallet   *ledger.WalletLedger
	balances repository.BalanceRepository
	entries  repository.EntryRepository
	games    *GameService
	payouts  *BalanceService
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	clock := &fakeClock{now: epoch}
	pub := &recordingPublisher{}
	m := metrics.New("test")
	wallet := ledger.NewWalletLedger(db, clock.Now)
	balances := repository.NewBalanceRepository(db)
	entries := repository.NewEntryRepository(db)

	h := &harness{
		db:       db,
		clock:    clock,
		pub:      pub,
		wallet:   wallet,
		balances: balances,
		entries:  entries,
		metrics:  m,
		games: NewGameService(
			db,
			repository.NewGameRepository(db),
			balances,
			entries,
			wallet,
			pub,
			m,
			GameConfig{
				MinStake:     1,
				MaxStake:     10_000,
				CommitWindow: window,
				RevealWindow: window,
				CancelGrace:  window,
			},
			WithClock(clock),
			WithEntropy(bytes.NewReader(bytes.Repeat([]byte{0xab}, 32*64))),
		),
		payouts: NewBalanceService(db, balances, entries, wallet, m, clock),
	}

	ctx := context.Background()
	for _, p := range []string{"alice", "bob", "carol"} {
		require.NoError(t, wallet.Fund(ctx, p, startingFunds))
	}
	return h
}

func commitmentFor(choice model.Choice, nonce int64, player string) string {
	return game.Commit(choice, big.NewInt(nonce), player).String()
}

// matched creates a session by alice and has bob join it.
func (h *harness) matched(t *testing.T, stake int64) *model.GameSession {
	t.Helper()
	ctx := context.Background()

	g, err := h.games.CreateSession(ctx, "alice", stake)
	require.NoError(t, err)
	g, err = h.games.JoinSession(ctx, "bob", g.ID, stake)
	require.NoError(t, err)
	return g
}

// committed advances a matched session into the reveal phase.
func (h *harness) committed(t *testing.T, stake int64, c1, c2 model.Choice) *model.GameSession {
	t.Helper()
	ctx := context.Background()

	g := h.matched(t, stake)
	_, err := h.games.CommitChoice(ctx, "alice", g.ID, commitmentFor(c1, 7, "alice"))
	require.NoError(t, err)
	g, err = h.games.CommitChoice(ctx, "bob", g.ID, commitmentFor(c2, 9, "bob"))
	require.NoError(t, err)
	return g
}

// played runs a full game to resolution.
func (h *harness) played(t *testing.T, stake int64, c1, c2 model.Choice) *model.GameSession {
	t.Helper()
	ctx := context.Background()

	g := h.committed(t, stake, c1, c2)
	_, err := h.games.RevealChoice(ctx, "alice", g.ID, c1, big.NewInt(7))
	require.NoError(t, err)
	g, err = h.games.RevealChoice(ctx, "bob", g.ID, c2, big.NewInt(9))
	require.NoError(t, err)
	return g
}

func (h *harness) balance(t *testing.T, account string) int64 {
	t.Helper()
	amount, err := h.payouts.GetBalance(context.Background(), account)
	require.NoError(t, err)
	return amount
}

func (h *harness) funds(t *testing.T, account string) int64 {
	t.Helper()
	funds, err := h.wallet.Funds(context.Background(), account)
	require.NoError(t, err)
	return funds
}
