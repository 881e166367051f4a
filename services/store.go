package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
)

// AccessSelector picks the folders an access update applies to: every folder
// whose id is in IDs plus every strict descendant of each path in
// DescendantsOf. Paths are matched literally.
// InsertResult reports how many rows were written and which paths were
// already registered by someone else.
type InsertResult struct {
	Inserted int
	Skipped  []string
}

type AccessSelector struct {
	IDs           []primitive.ObjectID
	DescendantsOf []string
}

func (s AccessSelector) Empty() bool {
	return len(s.IDs) == 0 && len(s.DescendantsOf) == 0
}

// AccessUpdate carries the fields to overwrite; nil fields are left alone.
type AccessUpdate struct {
	IsPublic     *bool
	AllowedUsers *[]primitive.ObjectID
}

type Reparent struct {
	ID       primitive.ObjectID
	ParentID *primitive.ObjectID
}

// FolderStore is the database mirror of the directory tree.
// Lookups of a single record return an error wrapping utils.ErrNotFound.
type FolderStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error)
	FindByPath(ctx context.Context, path string) (*models.Folder, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error)
	FindByPaths(ctx context.Context, paths []string) ([]models.Folder, error)
	// FindTree returns the folder at path and all of its descendants.
	FindTree(ctx context.Context, path string) ([]models.Folder, error)
	All(ctx context.Context) ([]models.Folder, error)

	// Insert returns an error wrapping utils.ErrConflict when the path is taken.
	Insert(ctx context.Context, folder *models.Folder) error
	// InsertMany skips folders whose path is already taken and reports them.
	InsertMany(ctx context.Context, folders []models.Folder) (InsertResult, error)
	Reparent(ctx context.Context, moves []Reparent) (int64, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	UpdateAccess(ctx context.Context, selector AccessSelector, update AccessUpdate) (int64, error)
}

// PermissionStore holds ACL entries, at most one per (resource, principal).
type PermissionStore interface {
	FindByResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.PermissionEntry, error)
	FindByResources(ctx context.Context, resourceIDs []primitive.ObjectID) ([]models.PermissionEntry, error)
	FindByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.PermissionEntry, error)
	Upsert(ctx context.Context, entry models.PermissionEntry) error
	Delete(ctx context.Context, resourceID primitive.ObjectID, principalType models.PrincipalType, principalID primitive.ObjectID) (int64, error)
	DeleteByResources(ctx context.Context, resourceIDs []primitive.ObjectID) (int64, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	AddGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
	RemoveGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
	RemoveGroupFromAll(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

type GroupStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	List(ctx context.Context) ([]models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Stores bundles one backend's implementations.
type Stores struct {
	Folders     FolderStore
	Permissions PermissionStore
	Users       UserStore
	Groups      GroupStore
}

func isStrictDescendant(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return len(path) > len(ancestor)+1 && path[:len(ancestor)+1] == ancestor+"/"
}
