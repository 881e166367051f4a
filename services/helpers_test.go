package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

type recordedEvent struct {
	Type    models.EventType
	Scope   models.Scope
	Payload any
}

// recordingNotifier keeps every notification for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingNotifier) Notify(ctx context.Context, eventType models.EventType, scope models.Scope, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Scope: scope, Payload: payload})
}

func (r *recordingNotifier) ofType(eventType models.EventType) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type testEnv struct {
	root     string
	fs       *FilesystemService
	stores   *Stores
	perms    *PermissionService
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	fs, err := NewFilesystemService(root)
	require.NoError(t, err)

	stores := NewMemoryStores()
	return &testEnv{
		root:     root,
		fs:       fs,
		stores:   stores,
		perms:    NewPermissionService(stores),
		notifier: &recordingNotifier{},
	}
}

func (e *testEnv) mkdir(t *testing.T, rel ...string) {
	t.Helper()
	for _, p := range rel {
		require.NoError(t, os.MkdirAll(filepath.Join(e.root, filepath.FromSlash(p)), 0o755))
	}
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// addFolder registers a folder record, linking it to its parent's record when
// there is one.
func (e *testEnv) addFolder(t *testing.T, path string, owner primitive.ObjectID, public bool) *models.Folder {
	t.Helper()
	ctx := context.Background()

	var parentID *primitive.ObjectID
	if parent := utils.ParentPath(path); parent != "" {
		record, err := e.stores.Folders.FindByPath(ctx, parent)
		require.NoError(t, err)
		parentID = &record.ID
	}

	now := time.Now()
	folder := &models.Folder{
		ID:           primitive.NewObjectID(),
		Name:         lastSegment(path),
		Path:         path,
		ParentID:     parentID,
		OwnerID:      owner,
		IsPublic:     public,
		AllowedUsers: []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.stores.Folders.Insert(ctx, folder))
	return folder
}

func (e *testEnv) addUser(t *testing.T, role string) models.Identity {
	t.Helper()
	user := &models.User{ID: primitive.NewObjectID(), Name: "user-" + role, Role: role}
	require.NoError(t, e.stores.Users.Create(context.Background(), user))
	return models.Identity{ID: user.ID, Role: role}
}

func (e *testEnv) folder(t *testing.T, path string) *models.Folder {
	t.Helper()
	record, err := e.stores.Folders.FindByPath(context.Background(), path)
	require.NoError(t, err)
	return record
}

func adminIdentity() models.Identity {
	return models.Identity{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
}

func userIdentity() models.Identity {
	return models.Identity{ID: primitive.NewObjectID(), Role: models.RoleUser}
}
