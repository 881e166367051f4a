package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

func newUploads(env *testEnv, mirror Mirror) *UploadService {
	return NewUploadService(env.fs, env.perms, env.stores, env.notifier, mirror, true)
}

func TestPrepareUpload_CreatesMissingSegments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, models.RoleUser)
	env.mkdir(t, "albums")
	albums := env.addFolder(t, "albums", user.ID, false)

	uploads := newUploads(env, nil)
	result, err := uploads.PrepareUpload(ctx, user, "albums/2024/summer")
	require.NoError(t, err)
	assert.Equal(t, "albums/2024/summer", result.Path)
	assert.Equal(t, 2, result.Created)

	year := env.folder(t, "albums/2024")
	summer := env.folder(t, "albums/2024/summer")
	require.NotNil(t, year.ParentID)
	assert.Equal(t, albums.ID, *year.ParentID)
	require.NotNil(t, summer.ParentID)
	assert.Equal(t, year.ID, *summer.ParentID)
	assert.Equal(t, user.ID, summer.OwnerID)
	assert.Equal(t, summer.ID, result.Folder.ID)
	assert.True(t, env.fs.IsDir("albums/2024/summer"))

	again, err := uploads.PrepareUpload(ctx, user, "albums/2024/summer")
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, summer.ID, again.Folder.ID)
}

func TestPrepareUpload_RequiresWriteOnNearestAncestor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, models.RoleUser)
	env.mkdir(t, "readonly")
	env.addFolder(t, "readonly", primitive.NewObjectID(), true)
	uploads := newUploads(env, nil)

	_, err := uploads.PrepareUpload(ctx, user, "readonly/new")
	assert.ErrorIs(t, err, utils.ErrAccessDenied)
	_, err = env.stores.Folders.FindByPath(ctx, "readonly/new")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	_, err = uploads.PrepareUpload(ctx, user, "brand-new")
	assert.ErrorIs(t, err, utils.ErrAccessDenied)

	_, err = uploads.PrepareUpload(ctx, user, "a/../../etc")
	assert.ErrorIs(t, err, utils.ErrInvalidPath)

	result, err := uploads.PrepareUpload(ctx, adminIdentity(), "brand-new/deep")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
}

func TestPrepareUpload_DoesNotClaimUnregisteredDirectory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, models.RoleUser)
	env.mkdir(t, "shared")
	env.addFolder(t, "shared", user.ID, false)
	env.writeFile(t, "shared/secret/payroll.txt", "numbers")
	uploads := newUploads(env, nil)

	allowed, err := env.perms.CanAccess(ctx, user, RefPath("shared/secret"), models.AccessRead)
	require.NoError(t, err)
	require.False(t, allowed)

	_, err = uploads.PrepareUpload(ctx, user, "shared/secret/x")
	assert.ErrorIs(t, err, utils.ErrAccessDenied)

	_, err = env.stores.Folders.FindByPath(ctx, "shared/secret")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = env.stores.Folders.FindByPath(ctx, "shared/secret/x")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.False(t, env.fs.Exists("shared/secret/x"))

	allowed, err = env.perms.CanAccess(ctx, user, RefPath("shared/secret"), models.AccessAdmin)
	require.NoError(t, err)
	assert.False(t, allowed)

	result, err := uploads.PrepareUpload(ctx, adminIdentity(), "shared/secret/x")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
}

func TestEnsureFolder_UsesExistingRecordOnConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	winner := env.addFolder(t, "race", primitive.NewObjectID(), true)

	folder, created, err := newUploads(env, nil).ensureFolder(ctx, adminIdentity(), "race", "race", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, folder.ID)
}

func TestCompleteUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, models.RoleUser)
	mirror := &fakeMirror{}
	uploads := newUploads(env, mirror)

	env.addFolder(t, "inbox", user.ID, false)
	env.writeFile(t, "inbox/clip.mp4", "video-bytes")

	result, err := uploads.CompleteUpload(ctx, user, "inbox/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, result.File.Kind)
	assert.EqualValues(t, len("video-bytes"), result.File.Size)
	require.NotNil(t, result.Mirror)
	assert.Equal(t, "media/inbox/clip.mp4", result.Mirror.ObjectName)
	assert.Equal(t, []string{"inbox/clip.mp4"}, mirror.uploaded)

	refreshes := env.notifier.ofType(models.EventGalleryRefresh)
	require.Len(t, refreshes, 1)
	assert.Equal(t, models.GalleryRefreshPayload{FolderPath: "inbox", Reason: "upload"}, refreshes[0].Payload)

	_, err = uploads.CompleteUpload(ctx, user, "inbox/missing.mp4")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = uploads.CompleteUpload(ctx, user, "inbox")
	assert.ErrorIs(t, err, utils.ErrAccessDenied)
}
