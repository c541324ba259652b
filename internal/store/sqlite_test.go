// ABOUTME: Tests for SQLite store setup and shared helpers
// ABOUTME: Covers file creation, in-memory mode, time encoding, and closed-database mapping

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	createTestPrincipal(t, store, "alice", Roles{Provider: true})

	// a second query must see the same database
	p, err := store.GetPrincipalByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "p-alice", p.ID)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	createTestPrincipal(t, first, "alice", Roles{})
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	_, err = second.GetPrincipal(context.Background(), "p-alice")
	assert.NoError(t, err)
}

func TestTimeEncoding_OrdersLexically(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	late := early.Add(time.Nanosecond)
	assert.Less(t, formatTime(early), formatTime(late))

	// non-UTC inputs are normalized
	loc := time.FixedZone("X", 5*3600)
	assert.Equal(t, formatTime(early), formatTime(early.In(loc)))

	parsed, err := parseTime(formatTime(early))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(early))
}

func TestPing_ClosedDatabaseIsUnavailable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(ctx), ErrUnavailable)

	_, err := store.GetPrincipal(ctx, "anything")
	assert.ErrorIs(t, err, ErrUnavailable)
}
