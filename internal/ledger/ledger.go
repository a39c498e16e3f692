// Package ledger defines the external value custodian the engine escrows
// stakes into and pays withdrawals out of.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/repository"
)

// ValueLedger moves value between players and the engine's escrow.
type ValueLedger interface {
	// Deposit escrows amount from account into the engine.
	Deposit(ctx context.Context, account string, amount int64) error
	// Transfer pays amount from the engine out to account.
	Transfer(ctx context.Context, account string, amount int64) error
}

// TxBinder is implemented by ledgers that can join the caller's transaction.
type TxBinder interface {
	WithTx(tx *sqlx.Tx) ValueLedger
}

// Bind returns l bound to tx when it supports it, and l unchanged otherwise.
func Bind(l ValueLedger, tx *sqlx.Tx) ValueLedger {
	if b, ok := l.(TxBinder); ok {
		return b.WithTx(tx)
	}
	return l
}

// WalletLedger keeps player funds in the wallets table.
type WalletLedger struct {
	wallets repository.WalletRepository
	now     func() time.Time
}

var (
	_ ValueLedger = (*WalletLedger)(nil)
	_ TxBinder    = (*WalletLedger)(nil)
)

func NewWalletLedger(db database.DBTX, now func() time.Time) *WalletLedger {
	return &WalletLedger{wallets: repository.NewWalletRepository(db), now: now}
}

func (l *WalletLedger) WithTx(tx *sqlx.Tx) ValueLedger {
	return &WalletLedger{wallets: l.wallets.WithTx(tx), now: l.now}
}

func (l *WalletLedger) Deposit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return apperrors.Validation("deposit amount must be positive")
	}
	err := l.wallets.Debit(ctx, account, amount, l.now())
	if errors.Is(err, repository.ErrInsufficientFunds) {
		w, getErr := l.wallets.Get(ctx, account)
		if getErr != nil {
			return fmt.Errorf("get wallet: %w", getErr)
		}
		return apperrors.InsufficientFunds(account, amount, w.Funds)
	}
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	return nil
}

func (l *WalletLedger) Transfer(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return apperrors.Validation("transfer amount must be positive")
	}
	if err := l.wallets.Credit(ctx, account, amount, l.now()); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// Fund adds amount to an account's wallet outside of any game.
func (l *WalletLedger) Fund(ctx context.Context, account string, amount int64) error {
	return l.Transfer(ctx, account, amount)
}

// Funds reports the wallet balance of account.
func (l *WalletLedger) Funds(ctx context.Context, account string) (int64, error) {
	w, err := l.wallets.Get(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("get wallet: %w", err)
	}
	return w.Funds, nil
}
