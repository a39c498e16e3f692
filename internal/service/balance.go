package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/audit"
	"github.com/openclaw/wager-server-go/internal/database"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
)

// BalanceService pays out credited balances on request.
type BalanceService struct {
	db       *database.DB
	balances repository.BalanceRepository
	entries  repository.EntryRepository
	ledger   ledger.ValueLedger
	metrics  *metrics.Metrics
	clock    Clock
	locks    *KeyedMutex
}

func NewBalanceService(
	db *database.DB,
	balances repository.BalanceRepository,
	entries repository.EntryRepository,
	valueLedger ledger.ValueLedger,
	m *metrics.Metrics,
	clock Clock,
) *BalanceService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BalanceService{
		db:       db,
		balances: balances,
		entries:  entries,
		ledger:   valueLedger,
		metrics:  m,
		clock:    clock,
		locks:    NewKeyedMutex(),
	}
}

func (s *BalanceService) GetBalance(ctx context.Context, account string) (int64, error) {
	b, err := s.balances.Get(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return b.Amount, nil
}

// History lists the account's journal entries, newest first.
func (s *BalanceService) History(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error) {
	entries, err := s.entries.ListByAccount(ctx, account, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Withdraw zeroes the caller's balance and then transfers it out. The zeroing
// and the transfer share a transaction, so a failed transfer restores the
// balance. A withdrawal already in flight for the account, including one
// re-entered from the ledger's own transfer, is refused.
func (s *BalanceService) Withdraw(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, apperrors.Unauthorized("caller identity required")
	}

	unlock, ok := s.locks.TryLock(account)
	if !ok {
		return 0, apperrors.Conflict("withdrawal already in progress")
	}
	defer unlock()

	var amount int64
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		balances := s.balances.WithTx(tx)
		b, err := balances.Get(ctx, account)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		if b.Amount <= 0 {
			return apperrors.Validation("nothing to withdraw")
		}
		amount = b.Amount

		now := s.clock.Now()
		if err := balances.Zero(ctx, account, amount, now); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return apperrors.Conflict("balance changed during withdrawal")
			}
			return fmt.Errorf("zero balance: %w", err)
		}

		err = s.entries.WithTx(tx).Append(ctx, model.LedgerEntry{
			ID:        uuid.NewString(),
			Account:   account,
			Kind:      model.EntryWithdrawal,
			Amount:    amount,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("journal withdrawal: %w", err)
		}

		if err := ledger.Bind(s.ledger, tx).Transfer(ctx, account, amount); err != nil {
			return ledgerError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	audit.Funds(ctx, audit.EventWithdrawal, account, "", amount)
	s.metrics.ValueWithdrawn.Add(float64(amount))

	log.Info().
		Str("player", account).
		Int64("amount", amount).
		Msg("balance withdrawn")

	return amount, nil
}

