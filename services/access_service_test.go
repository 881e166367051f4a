package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

// countingFolderStore counts UpdateAccess calls to observe chunking.
type countingFolderStore struct {
	FolderStore
	updates   int
	selectors []AccessSelector
}

func (s *countingFolderStore) UpdateAccess(ctx context.Context, selector AccessSelector, update AccessUpdate) (int64, error) {
	s.updates++
	s.selectors = append(s.selectors, selector)
	return s.FolderStore.UpdateAccess(ctx, selector, update)
}

func TestSetFolderAccess_Recursive(t *testing.T) {
	tests := []struct {
		name      string
		recursive bool
		wantChild bool
	}{
		{"recursive reaches children", true, false},
		{"non recursive leaves children", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			owner := primitive.NewObjectID()
			root := env.addFolder(t, "root", owner, true)
			env.addFolder(t, "root/child1", owner, true)
			env.addFolder(t, "root/child2", owner, true)
			env.addFolder(t, "rootless", owner, true)

			access := NewAccessService(env.stores, env.notifier, 0)
			modified, err := access.SetFolderAccess(ctx, root.ID, false, nil, tt.recursive)
			require.NoError(t, err)

			assert.False(t, env.folder(t, "root").IsPublic)
			assert.Equal(t, tt.wantChild, env.folder(t, "root/child1").IsPublic)
			assert.Equal(t, tt.wantChild, env.folder(t, "root/child2").IsPublic)
			assert.True(t, env.folder(t, "rootless").IsPublic)
			if tt.recursive {
				assert.EqualValues(t, 3, modified)
			} else {
				assert.EqualValues(t, 1, modified)
			}

			events := env.notifier.ofType(models.EventPermissionUpdate)
			require.Len(t, events, 1)
			assert.Equal(t, models.GlobalScope, events[0].Scope)
			assert.Equal(t, models.PermissionUpdatePayload{
				FolderPath:  "root",
				FolderID:    root.ID.Hex(),
				IsRecursive: tt.recursive,
			}, events[0].Payload)
		})
	}
}

func TestSetFolderAccess_AllowList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	folder := env.addFolder(t, "team", primitive.NewObjectID(), true)
	member := primitive.NewObjectID()

	access := NewAccessService(env.stores, env.notifier, 0)
	_, err := access.SetFolderAccess(ctx, folder.ID, false, []primitive.ObjectID{member}, false)
	require.NoError(t, err)

	assert.Equal(t, []primitive.ObjectID{member}, env.folder(t, "team").AllowedUsers)
}

func TestSetFolderAccess_MissingFolderWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	counting := &countingFolderStore{FolderStore: env.stores.Folders}
	env.stores.Folders = counting

	access := NewAccessService(env.stores, env.notifier, 0)
	_, err := access.SetFolderAccess(context.Background(), primitive.NewObjectID(), false, nil, true)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Zero(t, counting.updates)
	assert.Empty(t, env.notifier.events)
}

func TestSetFolderAccess_MetacharactersMatchLiterally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()
	target := env.addFolder(t, "a.b", owner, true)
	env.addFolder(t, "a.b/inside", owner, true)
	env.addFolder(t, "axb", owner, true)
	env.addFolder(t, "axb/outside", owner, true)
	env.addFolder(t, "(x)", owner, true)
	env.addFolder(t, "(x)/y", owner, true)

	access := NewAccessService(env.stores, env.notifier, 0)
	_, err := access.SetFolderAccess(ctx, target.ID, false, nil, true)
	require.NoError(t, err)

	assert.False(t, env.folder(t, "a.b/inside").IsPublic)
	assert.True(t, env.folder(t, "axb/outside").IsPublic)
	assert.True(t, env.folder(t, "(x)/y").IsPublic)
}

func TestBulkSetPublic_Chunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	var ids []primitive.ObjectID
	for i := 0; i < 5; i++ {
		folder := env.addFolder(t, fmt.Sprintf("f%d", i), owner, true)
		env.addFolder(t, fmt.Sprintf("f%d/sub", i), owner, true)
		ids = append(ids, folder.ID)
	}
	ids = append(ids, primitive.NewObjectID()) // does not resolve

	counting := &countingFolderStore{FolderStore: env.stores.Folders}
	env.stores.Folders = counting

	access := NewAccessService(env.stores, env.notifier, 2)
	result, err := access.BulkSetPublic(ctx, ids, false, true)
	require.NoError(t, err)

	assert.Equal(t, BulkResult{Requested: 6, Resolved: 5, Modified: 10}, result)
	assert.Equal(t, 3, counting.updates)
	for _, selector := range counting.selectors {
		assert.LessOrEqual(t, len(selector.IDs), 2)
		assert.Equal(t, len(selector.IDs), len(selector.DescendantsOf))
	}
	for i := 0; i < 5; i++ {
		assert.False(t, env.folder(t, fmt.Sprintf("f%d/sub", i)).IsPublic)
	}

	events := env.notifier.ofType(models.EventPermissionUpdate)
	require.Len(t, events, 5)
	for _, event := range events {
		payload := event.Payload.(models.PermissionUpdatePayload)
		assert.True(t, payload.IsBulk)
		assert.True(t, payload.IsRecursive)
	}
}

func TestBulkSetPublic_NonRecursive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()
	parent := env.addFolder(t, "p", owner, false)
	env.addFolder(t, "p/child", owner, false)

	access := NewAccessService(env.stores, env.notifier, 0)
	result, err := access.BulkSetPublic(ctx, []primitive.ObjectID{parent.ID}, true, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Modified)
	assert.True(t, env.folder(t, "p").IsPublic)
	assert.False(t, env.folder(t, "p/child").IsPublic)
}

func TestBulkSetPublic_Errors(t *testing.T) {
	env := newTestEnv(t)
	access := NewAccessService(env.stores, env.notifier, 0)

	_, err := access.BulkSetPublic(context.Background(), nil, true, false)
	assert.ErrorIs(t, err, utils.ErrInvalidArgument)

	_, err = access.BulkSetPublic(context.Background(), []primitive.ObjectID{primitive.NewObjectID()}, true, false)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	assert.Empty(t, env.notifier.events)
}
