package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/model"
)

// ErrInsufficientFunds is returned by Debit when the wallet cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

type WalletRepository interface {
	// Get returns an empty wallet for unknown accounts.
	Get(ctx context.Context, account string) (*model.Wallet, error)
	Credit(ctx context.Context, account string, amount int64, now time.Time) error
	Debit(ctx context.Context, account string, amount int64, now time.Time) error
	WithTx(tx *sqlx.Tx) WalletRepository
}

type walletRepo struct {
	db database.DBTX
}

func NewWalletRepository(db database.DBTX) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) WithTx(tx *sqlx.Tx) WalletRepository {
	return &walletRepo{db: tx}
}

func (r *walletRepo) Get(ctx context.Context, account string) (*model.Wallet, error) {
	var row struct {
		Account   string `db:"account"`
		Funds     int64  `db:"funds"`
		UpdatedAt int64  `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT account, funds, updated_at FROM wallets WHERE account = ?
	`), account)
	found, err := HandleNotFound(&row, err)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return &model.Wallet{Account: account}, nil
	}
	return &model.Wallet{Account: found.Account, Funds: found.Funds, UpdatedAt: fromMillis(found.UpdatedAt)}, nil
}

func (r *walletRepo) Credit(ctx context.Context, account string, amount int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO wallets (account, funds, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (account) DO UPDATE SET
			funds = wallets.funds + excluded.funds,
			updated_at = excluded.updated_at
	`), account, amount, toMillis(now))
	return err
}

func (r *walletRepo) Debit(ctx context.Context, account string, amount int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE wallets SET funds = funds - ?, updated_at = ?
		WHERE account = ? AND funds >= ?
	`), amount, toMillis(now), account, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
