package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/testutil"
)

type plainLedger struct{}

func (plainLedger) Deposit(context.Context, string, int64) error  { return nil }
func (plainLedger) Transfer(context.Context, string, int64) error { return nil }

func fixedNow() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

func TestWalletLedger(t *testing.T) {
	db := testutil.NewDB(t)
	l := NewWalletLedger(db, fixedNow)
	ctx := context.Background()

	require.NoError(t, l.Fund(ctx, "alice", 100))

	t.Run("deposit debits the wallet", func(t *testing.T) {
		require.NoError(t, l.Deposit(ctx, "alice", 30))
		funds, err := l.Funds(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(70), funds)
	})

	t.Run("deposit beyond funds reports insufficient funds", func(t *testing.T) {
		err := l.Deposit(ctx, "alice", 71)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInsufficientFunds, apperrors.GetCode(err))
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
	})

	t.Run("transfer credits the wallet", func(t *testing.T) {
		require.NoError(t, l.Transfer(ctx, "alice", 30))
		funds, err := l.Funds(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(100), funds)
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		assert.True(t, apperrors.Is(l.Deposit(ctx, "alice", 0), apperrors.ErrCodeValidation))
		assert.True(t, apperrors.Is(l.Transfer(ctx, "alice", -5), apperrors.ErrCodeValidation))
	})

	t.Run("bound ledger rolls back with its transaction", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := Bind(l, tx).Deposit(ctx, "alice", 100); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		funds, err := l.Funds(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(100), funds)
	})
}

func TestBind(t *testing.T) {
	t.Run("returns ledgers without tx support unchanged", func(t *testing.T) {
		var l ValueLedger = plainLedger{}
		assert.Equal(t, l, Bind(l, nil))
	})
}
