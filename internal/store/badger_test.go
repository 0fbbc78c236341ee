package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// initBadgerTestDB opens a fresh in-memory badger store for each test
func initBadgerTestDB(t *testing.T) Store {
	ctx, cancel := context.WithCancel(context.Background())
	bs, err := OpenBadgerStore(ctx, "")
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		require.NoError(t, bs.Close())
	})

	return bs
}

func cleanupBadgerTestDB(t *testing.T) {
	// Closed by t.Cleanup
}

// TestBadgerStore runs all store tests against the embedded badger store
func TestBadgerStore(t *testing.T) {
	RunStoreTests(t, initBadgerTestDB, cleanupBadgerTestDB)
}

func TestOpenBadgerStoreOnDisk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	bs, err := OpenBadgerStore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, bs.SetKeyValue(ctx, "persisted", "yes"))
	require.NoError(t, bs.Close())

	reopened, err := OpenBadgerStore(ctx, dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.GetKeyValue(ctx, "persisted")
	require.NoError(t, err)
	require.Equal(t, "yes", value)
}
