package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/model"
)

// ErrDuplicateEntry means the session already journaled this kind of entry for
// the account.
var ErrDuplicateEntry = errors.New("duplicate ledger entry")

// EntryRepository is the append-only funds journal.
type EntryRepository interface {
	Append(ctx context.Context, entry model.LedgerEntry) error
	ListBySession(ctx context.Context, sessionID string) ([]model.LedgerEntry, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error)
	SumByKind(ctx context.Context) (map[model.EntryKind]int64, error)
	WithTx(tx *sqlx.Tx) EntryRepository
}

type entryRepo struct {
	db database.DBTX
}

func NewEntryRepository(db database.DBTX) EntryRepository {
	return &entryRepo{db: db}
}

func (r *entryRepo) WithTx(tx *sqlx.Tx) EntryRepository {
	return &entryRepo{db: tx}
}

type entryRow struct {
	ID        string         `db:"id"`
	Account   string         `db:"account"`
	SessionID sql.NullString `db:"session_id"`
	Kind      string         `db:"kind"`
	Amount    int64          `db:"amount"`
	CreatedAt int64          `db:"created_at"`
}

func (row entryRow) toModel() model.LedgerEntry {
	return model.LedgerEntry{
		ID:        row.ID,
		Account:   row.Account,
		SessionID: fromNullString(row.SessionID),
		Kind:      model.EntryKind(row.Kind),
		Amount:    row.Amount,
		CreatedAt: fromMillis(row.CreatedAt),
	}
}

func (r *entryRepo) Append(ctx context.Context, entry model.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO ledger_entries (id, account, session_id, kind, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), entry.ID, entry.Account, toNullString(entry.SessionID), string(entry.Kind), entry.Amount, toMillis(entry.CreatedAt))
	if database.IsUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	return err
}

func (r *entryRepo) ListBySession(ctx context.Context, sessionID string) ([]model.LedgerEntry, error) {
	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, account, session_id, kind, amount, created_at FROM ledger_entries
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`), sessionID)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (r *entryRepo) ListByAccount(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error) {
	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, account, session_id, kind, amount, created_at FROM ledger_entries
		WHERE account = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), account, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (r *entryRepo) SumByKind(ctx context.Context) (map[model.EntryKind]int64, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Total int64  `db:"total"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT kind, SUM(amount) AS total FROM ledger_entries GROUP BY kind`)
	if err != nil {
		return nil, err
	}

	sums := make(map[model.EntryKind]int64, len(rows))
	for _, row := range rows {
		sums[model.EntryKind(row.Kind)] = row.Total
	}
	return sums, nil
}

func toEntries(rows []entryRow) []model.LedgerEntry {
	out := make([]model.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
