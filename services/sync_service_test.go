package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

func TestSync_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := adminIdentity()
	syncService := NewSyncService(env.fs, env.stores, env.notifier, true)

	env.mkdir(t, "a/b/c")

	result, err := syncService.Sync(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Added: 3}, result)

	a, b, c := env.folder(t, "a"), env.folder(t, "a/b"), env.folder(t, "a/b/c")
	assert.Nil(t, a.ParentID)
	require.NotNil(t, b.ParentID)
	assert.Equal(t, a.ID, *b.ParentID)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, b.ID, *c.ParentID)
	assert.Equal(t, admin.ID, a.OwnerID)
	assert.True(t, a.IsPublic)
	assert.Equal(t, "c", c.Name)

	require.NoError(t, os.Remove(filepath.Join(env.root, "a", "b", "c")))

	result, err = syncService.Sync(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Removed: 1}, result)

	all, err := env.stores.Folders.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, env.folder(t, "a").ID)
	assert.Equal(t, b.ID, env.folder(t, "a/b").ID)
}

func TestSync_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	syncService := NewSyncService(env.fs, env.stores, env.notifier, true)

	env.mkdir(t, "x/y", "z", ".hidden/inner")
	env.writeFile(t, "x/photo.jpg", "jpeg")

	first, err := syncService.Sync(ctx, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Added)
	assert.Len(t, env.notifier.ofType(models.EventGalleryRefresh), 1)

	env.notifier.reset()
	second, err := syncService.Sync(ctx, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, second)
	assert.Empty(t, env.notifier.ofType(models.EventGalleryRefresh))
}

func TestSync_ReparentsMovedRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := adminIdentity()
	syncService := NewSyncService(env.fs, env.stores, env.notifier, true)

	env.mkdir(t, "a/b")
	_, err := syncService.Sync(ctx, admin)
	require.NoError(t, err)

	// Point a/b at a bogus parent, as if the tree had moved underneath it.
	b := env.folder(t, "a/b")
	_, err = env.stores.Folders.Reparent(ctx, []Reparent{{ID: b.ID, ParentID: nil}})
	require.NoError(t, err)

	result, err := syncService.Sync(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Updated: 1}, result)

	b = env.folder(t, "a/b")
	require.NotNil(t, b.ParentID)
	assert.Equal(t, env.folder(t, "a").ID, *b.ParentID)
}

func TestSync_DefaultPrivate(t *testing.T) {
	env := newTestEnv(t)
	syncService := NewSyncService(env.fs, env.stores, env.notifier, false)
	env.mkdir(t, "new")

	_, err := syncService.Sync(context.Background(), adminIdentity())
	require.NoError(t, err)
	assert.False(t, env.folder(t, "new").IsPublic)
}

func TestSync_KeepsPermissionEntriesOfRemovedFolders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	syncService := NewSyncService(env.fs, env.stores, env.notifier, true)

	env.mkdir(t, "gone")
	_, err := syncService.Sync(ctx, adminIdentity())
	require.NoError(t, err)

	gone := env.folder(t, "gone")
	user := env.addUser(t, models.RoleUser)
	require.NoError(t, env.stores.Permissions.Upsert(ctx, models.NewPermissionEntry(gone.ID, user.ID, models.PrincipalUser, models.AccessRead)))

	require.NoError(t, os.Remove(filepath.Join(env.root, "gone")))
	result, err := syncService.Sync(ctx, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	entries, err := env.stores.Permissions.FindByResource(ctx, gone.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSync_Errors(t *testing.T) {
	t.Run("non admin", func(t *testing.T) {
		env := newTestEnv(t)
		syncService := NewSyncService(env.fs, env.stores, env.notifier, true)

		_, err := syncService.Sync(context.Background(), userIdentity())
		assert.ErrorIs(t, err, utils.ErrAccessDenied)
	})

	t.Run("missing root", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.addFolder(t, "kept", adminIdentity().ID, true)

		fs, err := NewFilesystemService(filepath.Join(env.root, "does-not-exist"))
		require.NoError(t, err)
		syncService := NewSyncService(fs, env.stores, env.notifier, true)

		_, err = syncService.Sync(ctx, adminIdentity())
		assert.ErrorIs(t, err, utils.ErrStorageUnavailable)

		all, err := env.stores.Folders.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

// racingFolderStore registers a folder right before the first batch insert,
// as an upload running alongside the sync would.
type racingFolderStore struct {
	FolderStore
	winner *models.Folder
	raced  bool
}

func (s *racingFolderStore) InsertMany(ctx context.Context, folders []models.Folder) (InsertResult, error) {
	if !s.raced {
		s.raced = true
		if err := s.FolderStore.Insert(ctx, s.winner); err != nil {
			return InsertResult{}, err
		}
	}
	return s.FolderStore.InsertMany(ctx, folders)
}

func TestSync_ConcurrentRegistrationKeepsTreeLinked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mkdir(t, "a/b/c")

	winner := &models.Folder{ID: primitive.NewObjectID(), Name: "a", Path: "a", OwnerID: primitive.NewObjectID()}
	racing := &racingFolderStore{FolderStore: env.stores.Folders, winner: winner}
	stores := *env.stores
	stores.Folders = racing
	syncService := NewSyncService(env.fs, &stores, env.notifier, true)

	result, err := syncService.Sync(ctx, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Added: 2}, result)

	a, b, c := env.folder(t, "a"), env.folder(t, "a/b"), env.folder(t, "a/b/c")
	assert.Equal(t, winner.ID, a.ID)
	assert.Equal(t, winner.OwnerID, a.OwnerID)
	require.NotNil(t, b.ParentID)
	assert.Equal(t, winner.ID, *b.ParentID)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, b.ID, *c.ParentID)

	parent, err := env.stores.Folders.FindByID(ctx, *b.ParentID)
	require.NoError(t, err)
	assert.Equal(t, "a", parent.Path)

	second, err := NewSyncService(env.fs, env.stores, env.notifier, true).Sync(ctx, adminIdentity())
	require.NoError(t, err)
	assert.False(t, second.Changed())
}
