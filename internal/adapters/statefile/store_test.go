package statefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
)

func testSnapshot() domainauth.Snapshot {
	return domainauth.Snapshot{
		UserID: "user-123",
		Email:  "vecina@example.com",
		Profile: &domainauth.Profile{
			ID:     "user-123",
			Email:  "vecina@example.com",
			Nombre: "Vecina Canalera",
			Rol:    domainauth.RoleCiudadano,
		},
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewStore(path)
	ctx := context.Background()

	snap := testSnapshot()
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.UserID, loaded.UserID)
	assert.Equal(t, snap.Email, loaded.Email)
	require.NotNil(t, loaded.Profile)
	assert.Equal(t, "Vecina Canalera", loaded.Profile.Nombre)
	assert.WithinDuration(t, snap.SavedAt, loaded.SavedAt, time.Second)
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot()))

	second := testSnapshot()
	second.UserID = "user-456"
	second.Profile = nil
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "user-456", loaded.UserID)
	assert.Nil(t, loaded.Profile)
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot()))
	require.NoError(t, store.Clear(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing twice is fine.
	assert.NoError(t, store.Clear(ctx))
}

func TestStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "auth", "snapshot.json")
	store := NewStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
}

func TestStore_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewStore(path)
	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestStore_SaveEmptyUserID(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "snapshot.json"))

	snap := testSnapshot()
	snap.UserID = ""
	err := store.Save(context.Background(), snap)
	assert.Error(t, err)
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store := NewStore(path)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, store.Save(ctx, testSnapshot()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestStore_CanceledContext(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "snapshot.json"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Save(ctx, testSnapshot()))
	_, err := store.Load(ctx)
	assert.Error(t, err)
}
