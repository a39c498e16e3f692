// Package testutil provides SQLite-backed fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/wager-server-go/internal/database"
)

// NewDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Connect("sqlite://" + filepath.Join(t.TempDir(), "wager.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}
