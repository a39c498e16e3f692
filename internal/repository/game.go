package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/model"
)

type GameRepository interface {
	Create(ctx context.Context, params model.CreateGameSessionParams) (*model.GameSession, error)
	FindByID(ctx context.Context, id string) (*model.GameSession, error)
	// Update persists g if its Version still matches the stored row, then
	// bumps g.Version. A lost race returns ErrStaleVersion.
	Update(ctx context.Context, g *model.GameSession) error
	ListOpen(ctx context.Context, limit, offset int) ([]model.GameSession, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.GameSession, error)
	CountByPhase(ctx context.Context) (map[model.Phase]int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) GameRepository
}

type gameRepo struct {
	db database.DBTX
}

func NewGameRepository(db database.DBTX) GameRepository {
	return &gameRepo{db: db}
}

func (r *gameRepo) WithTx(tx *sqlx.Tx) GameRepository {
	return &gameRepo{db: tx}
}

type gameRow struct {
	ID               string         `db:"id"`
	Player1          string         `db:"player1"`
	Player2          sql.NullString `db:"player2"`
	Stake            int64          `db:"stake"`
	Commitment1      sql.NullString `db:"commitment1"`
	Commitment2      sql.NullString `db:"commitment2"`
	Choice1          int64          `db:"choice1"`
	Choice2          int64          `db:"choice2"`
	Revealed1        bool           `db:"revealed1"`
	Revealed2        bool           `db:"revealed2"`
	CommitDeadline   sql.NullInt64  `db:"commit_deadline"`
	RevealDeadline   sql.NullInt64  `db:"reveal_deadline"`
	Seed             sql.NullString `db:"seed"`
	Phase            string         `db:"phase"`
	Result           string         `db:"result"`
	Completed        bool           `db:"completed"`
	FundsDistributed bool           `db:"funds_distributed"`
	Version          int64          `db:"version"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
	CompletedAt      sql.NullInt64  `db:"completed_at"`
}

func (row gameRow) toModel() model.GameSession {
	return model.GameSession{
		ID:               row.ID,
		Player1:          row.Player1,
		Player2:          fromNullString(row.Player2),
		Stake:            row.Stake,
		Commitment1:      fromNullString(row.Commitment1),
		Commitment2:      fromNullString(row.Commitment2),
		Choice1:          model.Choice(row.Choice1),
		Choice2:          model.Choice(row.Choice2),
		Revealed1:        row.Revealed1,
		Revealed2:        row.Revealed2,
		CommitDeadline:   fromNullMillis(row.CommitDeadline),
		RevealDeadline:   fromNullMillis(row.RevealDeadline),
		Seed:             fromNullString(row.Seed),
		Phase:            model.Phase(row.Phase),
		Result:           model.Result(row.Result),
		Completed:        row.Completed,
		FundsDistributed: row.FundsDistributed,
		Version:          row.Version,
		CreatedAt:        fromMillis(row.CreatedAt),
		UpdatedAt:        fromMillis(row.UpdatedAt),
		CompletedAt:      fromNullMillis(row.CompletedAt),
	}
}

const gameColumns = `id, player1, player2, stake, commitment1, commitment2, choice1, choice2,
	revealed1, revealed2, commit_deadline, reveal_deadline, seed, phase, result,
	completed, funds_distributed, version, created_at, updated_at, completed_at`

func (r *gameRepo) Create(ctx context.Context, params model.CreateGameSessionParams) (*model.GameSession, error) {
	created := toMillis(params.CreatedAt)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO game_sessions (id, player1, stake, phase, result, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`), params.ID, params.Player1, params.Stake, string(model.PhaseCreated), string(model.ResultPending), created, created)
	if err != nil {
		return nil, err
	}

	return &model.GameSession{
		ID:        params.ID,
		Player1:   params.Player1,
		Stake:     params.Stake,
		Phase:     model.PhaseCreated,
		Result:    model.ResultPending,
		CreatedAt: fromMillis(created),
		UpdatedAt: fromMillis(created),
	}, nil
}

func (r *gameRepo) FindByID(ctx context.Context, id string) (*model.GameSession, error) {
	var row gameRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+gameColumns+` FROM game_sessions WHERE id = ?`), id)
	found, err := HandleNotFound(&row, err)
	if err != nil || found == nil {
		return nil, err
	}
	g := found.toModel()
	return &g, nil
}

func (r *gameRepo) Update(ctx context.Context, g *model.GameSession) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE game_sessions SET
			player2 = ?,
			commitment1 = ?,
			commitment2 = ?,
			choice1 = ?,
			choice2 = ?,
			revealed1 = ?,
			revealed2 = ?,
			commit_deadline = ?,
			reveal_deadline = ?,
			seed = ?,
			phase = ?,
			result = ?,
			completed = ?,
			funds_distributed = ?,
			completed_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`),
		toNullString(g.Player2),
		toNullString(g.Commitment1),
		toNullString(g.Commitment2),
		int64(g.Choice1),
		int64(g.Choice2),
		g.Revealed1,
		g.Revealed2,
		toNullMillis(g.CommitDeadline),
		toNullMillis(g.RevealDeadline),
		toNullString(g.Seed),
		string(g.Phase),
		string(g.Result),
		g.Completed,
		g.FundsDistributed,
		toNullMillis(g.CompletedAt),
		toMillis(g.UpdatedAt),
		g.ID,
		g.Version,
	)
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
	g.Version++
	return nil
}

func (r *gameRepo) ListOpen(ctx context.Context, limit, offset int) ([]model.GameSession, error) {
	var rows []gameRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+gameColumns+` FROM game_sessions
		WHERE phase = ? AND player2 IS NULL
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?
	`), string(model.PhaseCreated), limit, offset)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// ListExpired returns unfinished sessions whose active window closed before now.
func (r *gameRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.GameSession, error) {
	ms := toMillis(now)
	var rows []gameRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+gameColumns+` FROM game_sessions
		WHERE completed = ?
		  AND ((phase = ? AND commit_deadline < ?) OR (phase = ? AND reveal_deadline < ?))
		ORDER BY updated_at ASC
		LIMIT ?
	`), false, string(model.PhaseCommitting), ms, string(model.PhaseRevealing), ms, limit)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (r *gameRepo) CountByPhase(ctx context.Context) (map[model.Phase]int, error) {
	var rows []struct {
		Phase string `db:"phase"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT phase, COUNT(*) AS count FROM game_sessions GROUP BY phase`)
	if err != nil {
		return nil, err
	}

	counts := make(map[model.Phase]int, len(rows))
	for _, row := range rows {
		counts[model.Phase(row.Phase)] = row.Count
	}
	return counts, nil
}

func toModels(rows []gameRow) []model.GameSession {
	out := make([]model.GameSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
