package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/testutil"
)

func TestBalanceRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewBalanceRepository(db)
	ctx := context.Background()

	t.Run("unknown account has zero balance", func(t *testing.T) {
		b, err := repo.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.Amount)
	})

	t.Run("credits accumulate", func(t *testing.T) {
		require.NoError(t, repo.Credit(ctx, "alice", 100, epoch))
		require.NoError(t, repo.Credit(ctx, "alice", 50, epoch.Add(time.Second)))

		b, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(150), b.Amount)
		assert.Equal(t, epoch.Add(time.Second), b.UpdatedAt)
	})

	t.Run("zero requires the expected amount", func(t *testing.T) {
		assert.ErrorIs(t, repo.Zero(ctx, "alice", 100, epoch), ErrStaleVersion)
		require.NoError(t, repo.Zero(ctx, "alice", 150, epoch))

		b, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.Amount)
	})

	t.Run("credit inside a rolled back transaction is discarded", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := repo.WithTx(tx).Credit(ctx, "carol", 10, epoch); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		total, err := repo.Total(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})
}

func TestEntryRepository(t *testing.T) {
	repo := NewEntryRepository(testutil.NewDB(t))
	ctx := context.Background()
	session := "g1"

	require.NoError(t, repo.Append(ctx, model.LedgerEntry{
		ID: "e1", Account: "alice", SessionID: &session, Kind: model.EntryDeposit, Amount: 100, CreatedAt: epoch,
	}))
	require.NoError(t, repo.Append(ctx, model.LedgerEntry{
		ID: "e2", Account: "alice", SessionID: &session, Kind: model.EntryCredit, Amount: 200, CreatedAt: epoch.Add(time.Second),
	}))
	require.NoError(t, repo.Append(ctx, model.LedgerEntry{
		ID: "e3", Account: "alice", Kind: model.EntryWithdrawal, Amount: 200, CreatedAt: epoch.Add(2 * time.Second),
	}))

	t.Run("rejects a second credit for the same session and account", func(t *testing.T) {
		err := repo.Append(ctx, model.LedgerEntry{
			ID: "e4", Account: "alice", SessionID: &session, Kind: model.EntryCredit, Amount: 200, CreatedAt: epoch,
		})
		assert.ErrorIs(t, err, ErrDuplicateEntry)
	})

	t.Run("lists entries of a session in order", func(t *testing.T) {
		entries, err := repo.ListBySession(ctx, session)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, model.EntryDeposit, entries[0].Kind)
		assert.Equal(t, model.EntryCredit, entries[1].Kind)
	})

	t.Run("lists account history newest first", func(t *testing.T) {
		entries, err := repo.ListByAccount(ctx, "alice", 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "e3", entries[0].ID)
		assert.Nil(t, entries[0].SessionID)
	})

	t.Run("sums by kind", func(t *testing.T) {
		sums, err := repo.SumByKind(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), sums[model.EntryDeposit])
		assert.Equal(t, int64(200), sums[model.EntryCredit])
		assert.Equal(t, int64(200), sums[model.EntryWithdrawal])
	})
}

func TestWalletRepository(t *testing.T) {
	repo := NewWalletRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Credit(ctx, "alice", 100, epoch))

	t.Run("debit within funds succeeds", func(t *testing.T) {
		require.NoError(t, repo.Debit(ctx, "alice", 60, epoch))
		w, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), w.Funds)
	})

	t.Run("debit beyond funds fails without change", func(t *testing.T) {
		assert.ErrorIs(t, repo.Debit(ctx, "alice", 41, epoch), ErrInsufficientFunds)
		w, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), w.Funds)
	})

	t.Run("unknown wallet is empty and cannot be debited", func(t *testing.T) {
		w, err := repo.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(0), w.Funds)
		assert.ErrorIs(t, repo.Debit(ctx, "nobody", 1, epoch), ErrInsufficientFunds)
	})
}

func TestPlayerRepository(t *testing.T) {
	repo := NewPlayerRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, model.CreatePlayerParams{ID: "p1", Name: "alice", TokenHash: "h1", CreatedAt: epoch})
	require.NoError(t, err)

	t.Run("finds by token hash", func(t *testing.T) {
		p, err := repo.FindByTokenHash(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "alice", p.Name)
	})

	t.Run("returns nil for unknown hash", func(t *testing.T) {
		p, err := repo.FindByTokenHash(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("counts players", func(t *testing.T) {
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
