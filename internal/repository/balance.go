package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/model"
)

// BalanceRepository is the withdrawal ledger: amounts credited by resolution
// and claimable by their owner.
type BalanceRepository interface {
	// Get returns a zero balance for unknown accounts.
	Get(ctx context.Context, account string) (*model.Balance, error)
	Credit(ctx context.Context, account string, amount int64, now time.Time) error
	// Zero clears the balance only if it still equals expected.
	Zero(ctx context.Context, account string, expected int64, now time.Time) error
	Total(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) BalanceRepository
}

type balanceRepo struct {
	db database.DBTX
}

func NewBalanceRepository(db database.DBTX) BalanceRepository {
	return &balanceRepo{db: db}
}

func (r *balanceRepo) WithTx(tx *sqlx.Tx) BalanceRepository {
	return &balanceRepo{db: tx}
}

type balanceRow struct {
	Account   string `db:"account"`
	Amount    int64  `db:"amount"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *balanceRepo) Get(ctx context.Context, account string) (*model.Balance, error) {
	var row balanceRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT account, amount, updated_at FROM balances WHERE account = ?
	`), account)
	found, err := HandleNotFound(&row, err)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return &model.Balance{Account: account}, nil
	}
	return &model.Balance{
		Account:   found.Account,
		Amount:    found.Amount,
		UpdatedAt: fromMillis(found.UpdatedAt),
	}, nil
}

func (r *balanceRepo) Credit(ctx context.Context, account string, amount int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO balances (account, amount, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (account) DO UPDATE SET
			amount = balances.amount + excluded.amount,
			updated_at = excluded.updated_at
	`), account, amount, toMillis(now))
	return err
}

func (r *balanceRepo) Zero(ctx context.Context, account string, expected int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE balances SET amount = 0, updated_at = ?
		WHERE account = ? AND amount = ?
	`), toMillis(now), account, expected)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *balanceRepo) Total(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM balances`)
	return total, err
}
