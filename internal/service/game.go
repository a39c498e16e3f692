package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/wager-server-go/internal/audit"
	"github.com/openclaw/wager-server-go/internal/database"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/game"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
	"github.com/openclaw/wager-server-go/internal/tracing"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type GameConfig struct {
	MinStake     int64
	MaxStake     int64
	CommitWindow time.Duration
	RevealWindow time.Duration
	CancelGrace  time.Duration
}

type Option func(*GameService)

func WithClock(c Clock) Option {
	return func(s *GameService) { s.clock = c }
}

func WithEntropy(r io.Reader) Option {
	return func(s *GameService) { s.entropy = r }
}

// GameService owns the session lifecycle. Every mutation of a session runs
// under that session's lock and inside one database transaction.
type GameService struct {
	db       *database.DB
	games    repository.GameRepository
	balances repository.BalanceRepository
	entries  repository.EntryRepository
	ledger   ledger.ValueLedger
	events   EventPublisher
	metrics  *metrics.Metrics
	cfg      GameConfig
	clock    Clock
	entropy  io.Reader
	locks    *KeyedMutex
	tracer   trace.Tracer
}

func NewGameService(
	db *database.DB,
	games repository.GameRepository,
	balances repository.BalanceRepository,
	entries repository.EntryRepository,
	valueLedger ledger.ValueLedger,
	events EventPublisher,
	m *metrics.Metrics,
	cfg GameConfig,
	opts ...Option,
) *GameService {
	s := &GameService{
		db:       db,
		games:    games,
		balances: balances,
		entries:  entries,
		ledger:   valueLedger,
		events:   events,
		metrics:  m,
		cfg:      cfg,
		clock:    SystemClock{},
		entropy:  DefaultEntropy,
		locks:    NewKeyedMutex(),
		tracer:   tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession opens a session and escrows the creator's stake.
func (s *GameService) CreateSession(ctx context.Context, caller string, stake int64) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "CreateSession", "", caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("create", time.Now())

	if caller == "" {
		return nil, apperrors.Unauthorized("caller identity required")
	}
	if stake < s.cfg.MinStake || stake > s.cfg.MaxStake {
		return nil, apperrors.InvalidInput("stake", fmt.Sprintf("must be between %d and %d", s.cfg.MinStake, s.cfg.MaxStake))
	}

	now := s.clock.Now()
	id := uuid.NewString()

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.games.WithTx(tx).Create(ctx, model.CreateGameSessionParams{
			ID:        id,
			Player1:   caller,
			Stake:     stake,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		g = created
		return s.escrow(ctx, tx, caller, id, stake, now)
	})
	if err != nil {
		return nil, err
	}

	audit.Funds(ctx, audit.EventDeposit, caller, id, stake)
	s.metrics.SessionsCreated.Inc()

	log.Info().
		Str("sessionId", id).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Int64("stake", stake).
		Msg("session created")

	return g, nil
}

// JoinSession seats the caller as the second player and opens the commit window.
func (s *GameService) JoinSession(ctx context.Context, caller, sessionID string, stake int64) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "JoinSession", sessionID, caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("join", time.Now())

	if caller == "" {
		return nil, apperrors.Unauthorized("caller identity required")
	}

	g, err = s.mutate(ctx, sessionID, func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error {
		if g.Player2 != nil || g.Phase != model.PhaseCreated {
			return apperrors.State("session is not open for joining")
		}
		if g.Player1 == caller {
			return apperrors.Authorization("cannot join your own session")
		}
		if stake != g.Stake {
			return apperrors.InvalidInput("stake", fmt.Sprintf("must equal the session stake %d", g.Stake))
		}

		deadline := now.Add(s.cfg.CommitWindow)
		g.Player2 = &caller
		g.Phase = model.PhaseCommitting
		g.CommitDeadline = &deadline
		return s.escrow(ctx, tx, caller, g.ID, stake, now)
	})
	if err != nil {
		return nil, err
	}

	audit.Funds(ctx, audit.EventDeposit, caller, g.ID, stake)
	s.metrics.SessionsJoined.Inc()
	notify(ctx, s.events, g, EventSessionJoined, sessionEvent{Player: caller, CommitDeadline: g.CommitDeadline})

	log.Info().
		Str("sessionId", g.ID).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Time("commitDeadline", *g.CommitDeadline).
		Msg("session joined")

	return g, nil
}

// CommitChoice stores the caller's commitment. The second commitment closes
// the commit phase and opens the reveal window.
func (s *GameService) CommitChoice(ctx context.Context, caller, sessionID, commitment string) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "CommitChoice", sessionID, caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("commit", time.Now())

	parsed, err := game.ParseCommitment(commitment)
	if err != nil {
		return nil, apperrors.InvalidInput("commitment", err.Error())
	}

	g, err = s.mutate(ctx, sessionID, func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error {
		seat := g.Seat(caller)
		if seat == 0 {
			return apperrors.Authorization("caller is not a participant")
		}
		if g.Completed || g.Phase != model.PhaseCommitting {
			return apperrors.State("commit phase is not open")
		}
		if g.CommitDeadline == nil || now.After(*g.CommitDeadline) {
			return apperrors.Expiry("commit deadline has passed")
		}
		if g.CommitmentAt(seat) != nil {
			return apperrors.State("choice already committed")
		}

		g.SetCommitment(seat, parsed.String())
		if !g.BothCommitted() {
			return nil
		}

		seed, err := drawSeed(s.entropy)
		if err != nil {
			return err
		}
		deadline := now.Add(s.cfg.RevealWindow)
		g.Seed = &seed
		g.Phase = model.PhaseRevealing
		g.RevealDeadline = &deadline
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Commits.Inc()
	notify(ctx, s.events, g, EventChoiceCommitted, sessionEvent{Player: caller})
	if g.Phase == model.PhaseRevealing {
		notify(ctx, s.events, g, EventRevealPhaseStarted, sessionEvent{RevealDeadline: g.RevealDeadline})
	}

	log.Info().
		Str("sessionId", g.ID).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Msg("choice committed")

	return g, nil
}

// RevealChoice opens the caller's commitment. The second valid reveal
// resolves the session and credits the payout in the same transaction.
func (s *GameService) RevealChoice(ctx context.Context, caller, sessionID string, choice model.Choice, nonce *big.Int) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "RevealChoice", sessionID, caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("reveal", time.Now())

	if !choice.Valid() {
		return nil, apperrors.InvalidInput("choice", "must be rock, paper or scissors")
	}
	if nonce == nil {
		return nil, apperrors.MissingRequired("nonce")
	}

	var payouts []game.Payout
	g, err = s.mutate(ctx, sessionID, func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error {
		seat := g.Seat(caller)
		if seat == 0 {
			return apperrors.Authorization("caller is not a participant")
		}
		if g.Completed || g.Phase != model.PhaseRevealing {
			return apperrors.State("reveal phase is not open")
		}
		if g.RevealDeadline == nil || now.After(*g.RevealDeadline) {
			return apperrors.Expiry("reveal deadline has passed")
		}
		if g.RevealedAt(seat) {
			return apperrors.State("choice already revealed")
		}

		stored := g.CommitmentAt(seat)
		if stored == nil {
			return apperrors.State("no commitment to reveal")
		}
		commitment, err := game.ParseCommitment(*stored)
		if err != nil {
			return fmt.Errorf("stored commitment: %w", err)
		}
		if !game.Verify(commitment, choice, nonce, caller) {
			return apperrors.Replay("invalid reveal")
		}

		g.SetReveal(seat, choice)
		if !g.BothRevealed() {
			return nil
		}

		g.Phase = model.PhaseResolved
		payouts, err = s.settle(ctx, tx, g, game.Decide(g.Choice1, g.Choice2), now)
		return err
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeReplay) {
			s.metrics.Reveals.WithLabelValues("invalid").Inc()
			audit.Log(ctx, audit.Event{Type: audit.EventInvalidReveal, PlayerID: caller, SessionID: sessionID})
		}
		return nil, err
	}

	s.metrics.Reveals.WithLabelValues("valid").Inc()
	notify(ctx, s.events, g, EventChoiceRevealed, sessionEvent{Player: caller, Choice: choice})

	log.Info().
		Str("sessionId", g.ID).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Msg("choice revealed")

	if g.Completed {
		s.afterSettle(ctx, g, payouts)
	}
	return g, nil
}

// ResolveExpiredSession settles a session whose active window has closed.
// Anyone may call it. A player who acted in time wins by forfeit; if
// nobody acted, both stakes are refunded.
func (s *GameService) ResolveExpiredSession(ctx context.Context, caller, sessionID string) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "ResolveExpiredSession", sessionID, caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("resolve_expired", time.Now())

	var payouts []game.Payout
	g, err = s.mutate(ctx, sessionID, func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error {
		if g.Completed || g.FundsDistributed {
			return apperrors.State("session already completed")
		}

		var actedBy func(seat int) bool
		switch g.Phase {
		case model.PhaseRevealing:
			if g.RevealDeadline == nil || !now.After(*g.RevealDeadline) {
				return apperrors.Expiry("reveal window is still open")
			}
			actedBy = g.RevealedAt
		case model.PhaseCommitting:
			if g.CommitDeadline == nil || !now.After(*g.CommitDeadline) {
				return apperrors.Expiry("commit window is still open")
			}
			actedBy = func(seat int) bool { return g.CommitmentAt(seat) != nil }
		default:
			return apperrors.State("session has no expirable deadline")
		}

		result := model.ResultExpired
		g.Phase = model.PhaseExpired
		switch a1, a2 := actedBy(1), actedBy(2); {
		case a1 && !a2:
			result, g.Phase = game.ForfeitResult(1), model.PhaseForfeited
		case a2 && !a1:
			result, g.Phase = game.ForfeitResult(2), model.PhaseForfeited
		case a1 && a2:
			// RevealChoice normally settles this case inline.
			result, g.Phase = game.Decide(g.Choice1, g.Choice2), model.PhaseResolved
		}

		var err error
		payouts, err = s.settle(ctx, tx, g, result, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	callerType := "player"
	if g.Seat(caller) == 0 {
		callerType = "keeper"
	}
	s.metrics.SweepsTotal.WithLabelValues(callerType).Inc()

	log.Info().
		Str("sessionId", g.ID).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Str("result", string(g.Result)).
		Msg("expired session resolved")

	s.afterSettle(ctx, g, payouts)
	return g, nil
}

// CancelSession refunds the creator of a session nobody joined once the
// matching grace period has passed.
func (s *GameService) CancelSession(ctx context.Context, caller, sessionID string) (g *model.GameSession, err error) {
	ctx, span := s.startSpan(ctx, "CancelSession", sessionID, caller)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveSince("cancel", time.Now())

	var payouts []game.Payout
	g, err = s.mutate(ctx, sessionID, func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error {
		if g.Player1 != caller {
			return apperrors.Authorization("only the creator can cancel")
		}
		if g.Completed || g.Player2 != nil || g.Phase != model.PhaseCreated {
			return apperrors.State("session can no longer be cancelled")
		}
		if now.Before(g.CreatedAt.Add(s.cfg.CancelGrace)) {
			return apperrors.Expiry("cancel grace period has not elapsed")
		}

		g.Phase = model.PhaseExpired
		payouts = []game.Payout{{Account: g.Player1, Amount: g.Stake, Kind: model.EntryRefund}}
		return s.credit(ctx, tx, g, model.ResultExpired, payouts, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", g.ID).
		Str("player", caller).
		Str("phase", string(g.Phase)).
		Msg("session cancelled")

	s.recordPayouts(ctx, g, payouts)
	notify(ctx, s.events, g, EventSessionCancelled, sessionEvent{Result: g.Result, Credits: toPayoutViews(payouts)})
	return g, nil
}

func (s *GameService) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	g, err := s.games.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if g == nil {
		return nil, apperrors.NotFound("session")
	}
	return g, nil
}

// ListOpenSessions returns sessions still waiting for an opponent, oldest first.
func (s *GameService) ListOpenSessions(ctx context.Context, limit, offset int) ([]model.GameSession, error) {
	sessions, err := s.games.ListOpen(ctx, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return sessions, nil
}

// ListExpired returns unfinished sessions whose active deadline is before now.
func (s *GameService) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.GameSession, error) {
	sessions, err := s.games.ListExpired(ctx, now, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return sessions, nil
}

// SessionCredits sums the credits and refunds journaled for a session per account.
func (s *GameService) SessionCredits(ctx context.Context, sessionID string) (map[string]int64, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session entries: %w", err)
	}

	credits := make(map[string]int64)
	for _, e := range entries {
		if e.Kind == model.EntryCredit || e.Kind == model.EntryRefund {
			credits[e.Account] += e.Amount
		}
	}
	return credits, nil
}

// mutate loads a session under its lock, applies fn and persists the result
// in one transaction.
func (s *GameService) mutate(
	ctx context.Context,
	sessionID string,
	fn func(tx *sqlx.Tx, g *model.GameSession, now time.Time) error,
) (*model.GameSession, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var out *model.GameSession
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		games := s.games.WithTx(tx)
		g, err := games.FindByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		if g == nil {
			return apperrors.NotFound("session")
		}

		now := s.clock.Now()
		if err := fn(tx, g, now); err != nil {
			return err
		}

		g.UpdatedAt = now
		if err := games.Update(ctx, g); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return apperrors.Conflict("session was modified concurrently")
			}
			return fmt.Errorf("update session: %w", err)
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// escrow journals a deposit and pulls the stake from the value ledger. It
// runs last in the transaction so a ledger outside the database can still be
// rolled back against.
func (s *GameService) escrow(ctx context.Context, tx *sqlx.Tx, account, sessionID string, amount int64, now time.Time) error {
	err := s.entries.WithTx(tx).Append(ctx, model.LedgerEntry{
		ID:        uuid.NewString(),
		Account:   account,
		SessionID: &sessionID,
		Kind:      model.EntryDeposit,
		Amount:    amount,
		CreatedAt: now,
	})
	if errors.Is(err, repository.ErrDuplicateEntry) {
		return apperrors.Conflict("stake already deposited")
	}
	if err != nil {
		return fmt.Errorf("journal deposit: %w", err)
	}

	if err := ledger.Bind(s.ledger, tx).Deposit(ctx, account, amount); err != nil {
		return ledgerError(err)
	}
	return nil
}

// settle splits the pot for result and credits it exactly once.
func (s *GameService) settle(ctx context.Context, tx *sqlx.Tx, g *model.GameSession, result model.Result, now time.Time) ([]game.Payout, error) {
	payouts := game.Split(g, result)
	if game.Total(payouts) != g.Pot() {
		return nil, apperrors.Internal("payout does not conserve the pot")
	}
	return payouts, s.credit(ctx, tx, g, result, payouts, now)
}

// credit writes payouts to the withdrawal ledger and freezes the session.
// The session row update that follows is part of the same transaction.
func (s *GameService) credit(ctx context.Context, tx *sqlx.Tx, g *model.GameSession, result model.Result, payouts []game.Payout, now time.Time) error {
	if g.Completed || g.FundsDistributed {
		return apperrors.State("session already completed")
	}

	balances := s.balances.WithTx(tx)
	entries := s.entries.WithTx(tx)
	for _, p := range payouts {
		if p.Amount == 0 {
			continue
		}
		if err := balances.Credit(ctx, p.Account, p.Amount, now); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		err := entries.Append(ctx, model.LedgerEntry{
			ID:        uuid.NewString(),
			Account:   p.Account,
			SessionID: &g.ID,
			Kind:      p.Kind,
			Amount:    p.Amount,
			CreatedAt: now,
		})
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return apperrors.Conflict("session payout already recorded")
		}
		if err != nil {
			return fmt.Errorf("journal payout: %w", err)
		}
	}

	g.Result = result
	g.Completed = true
	g.FundsDistributed = true
	g.CompletedAt = &now
	return nil
}

func (s *GameService) afterSettle(ctx context.Context, g *model.GameSession, payouts []game.Payout) {
	s.recordPayouts(ctx, g, payouts)
	notify(ctx, s.events, g, EventSessionResolved, sessionEvent{Result: g.Result, Credits: toPayoutViews(payouts)})
}

func (s *GameService) recordPayouts(ctx context.Context, g *model.GameSession, payouts []game.Payout) {
	s.metrics.SessionsSettled.WithLabelValues(string(g.Phase), string(g.Result)).Inc()
	for _, p := range payouts {
		kind := audit.EventCredit
		if p.Kind == model.EntryRefund {
			kind = audit.EventRefund
		}
		audit.Funds(ctx, kind, p.Account, g.ID, p.Amount)
		s.metrics.ValueCredited.Add(float64(p.Amount))
	}
}

func (s *GameService) startSpan(ctx context.Context, name, sessionID, caller string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "GameService."+name, trace.WithAttributes(
		attribute.String("wager.session_id", sessionID),
		attribute.String("wager.caller", caller),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
	}
	span.End()
}

// ledgerError keeps ledger AppErrors as they are and wraps anything else as
// an external failure.
func ledgerError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.External("value ledger", err)
}

func toPayoutViews(payouts []game.Payout) []payoutView {
	views := make([]payoutView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, payoutView{Account: p.Account, Amount: p.Amount, Kind: p.Kind})
	}
	return views
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
