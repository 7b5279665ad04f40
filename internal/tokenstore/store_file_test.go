package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/pkg/platform/sentinel"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "auth", "credentials.json"))
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	written := Credentials{Token: "tok-xyz", UserID: "user-9", Role: "admin"}
	require.NoError(t, store.Save(ctx, written))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, written, *got)
}

func TestFileLoadMissing(t *testing.T) {
	_, err := newFileStore(t).Load(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFilePermissions(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.Save(ctx, Credentials{Token: "tok", UserID: "1", Role: "user"}))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.Save(ctx, Credentials{Token: "old", UserID: "1", Role: "user"}))
	require.NoError(t, store.Save(ctx, Credentials{Token: "new", UserID: "1", Role: "staff"}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Token)
	assert.Equal(t, "staff", got.Role)
}

func TestFileClearRemovesFile(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.Save(ctx, Credentials{Token: "tok", UserID: "1", Role: "user"}))

	require.NoError(t, store.Clear(ctx))
	_, err := os.Stat(store.path)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	require.NoError(t, store.Clear(ctx))
}

func TestFileLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.path), 0o700))
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o600))

	_, err := store.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, sentinel.ErrNotFound)
}
