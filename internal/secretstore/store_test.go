package secretstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestEnvStore(t *testing.T) {
	t.Parallel()

	env := map[string]string{"DNG_API_KEY": "secret", "EMPTY": ""}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	got, err := NewEnvStore("DNG_API_KEY", lookup).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = NewEnvStore("MISSING", lookup).Read(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewEnvStore("EMPTY", lookup).Read(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	err = NewEnvStore("DNG_API_KEY", lookup).Write(context.Background(), "other")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	store := NewKeyringStore("dng-proxy", "alice")

	_, err := store.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "k1"))
	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", got)

	other, err := NewKeyringStore("dng-proxy", "bob").Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, other)

	require.NoError(t, store.Write(ctx, ""))
	_, err = store.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing twice is not an error.
	require.NoError(t, store.Write(ctx, ""))
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "api_key")
	store := NewFileStore(path)

	_, err := store.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "k1"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", got)

	require.NoError(t, store.Write(ctx, "k2"))
	got, err = store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", got)

	require.NoError(t, store.Write(ctx, ""))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, store.Write(ctx, ""))

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, err = store.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}
