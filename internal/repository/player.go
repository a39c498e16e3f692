package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/model"
)

type PlayerRepository interface {
	Create(ctx context.Context, params model.CreatePlayerParams) (*model.Player, error)
	FindByID(ctx context.Context, id string) (*model.Player, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Player, error)
	Count(ctx context.Context) (int, error)
	WithTx(tx *sqlx.Tx) PlayerRepository
}

type playerRepo struct {
	db database.DBTX
}

func NewPlayerRepository(db database.DBTX) PlayerRepository {
	return &playerRepo{db: db}
}

func (r *playerRepo) WithTx(tx *sqlx.Tx) PlayerRepository {
	return &playerRepo{db: tx}
}

type playerRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	TokenHash string `db:"token_hash"`
	CreatedAt int64  `db:"created_at"`
}

func (row playerRow) toModel() *model.Player {
	return &model.Player{
		ID:        row.ID,
		Name:      row.Name,
		TokenHash: row.TokenHash,
		CreatedAt: fromMillis(row.CreatedAt),
	}
}

func (r *playerRepo) Create(ctx context.Context, params model.CreatePlayerParams) (*model.Player, error) {
	row := playerRow{
		ID:        params.ID,
		Name:      params.Name,
		TokenHash: params.TokenHash,
		CreatedAt: toMillis(params.CreatedAt),
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO players (id, name, token_hash, created_at)
		VALUES (?, ?, ?, ?)
	`), row.ID, row.Name, row.TokenHash, row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *playerRepo) FindByID(ctx context.Context, id string) (*model.Player, error) {
	var row playerRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, name, token_hash, created_at FROM players WHERE id = ?
	`), id)
	found, err := HandleNotFound(&row, err)
	if err != nil || found == nil {
		return nil, err
	}
	return found.toModel(), nil
}

func (r *playerRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Player, error) {
	var row playerRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, name, token_hash, created_at FROM players WHERE token_hash = ?
	`), tokenHash)
	found, err := HandleNotFound(&row, err)
	if err != nil || found == nil {
		return nil, err
	}
	return found.toModel(), nil
}

func (r *playerRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM players`)
	return count, err
}
