package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestKVRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepo(setupTestDB(t))

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Set(ctx, "user", `{"name":"a"}`))
	value, err := repo.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, value)

	require.NoError(t, repo.Set(ctx, "user", `{"name":"b"}`))
	value, err = repo.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"b"}`, value)

	require.NoError(t, repo.Delete(ctx, "user"))
	_, err = repo.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, repo.Delete(ctx, "user"))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewKVRepo(db).Set(ctx, "k", "v"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	value, err := NewKVRepo(db).Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}
