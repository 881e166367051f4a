package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

// DirectoryService manages users and groups. Membership is stored on both
// sides and every change updates both.
type DirectoryService struct {
	folders     FolderStore
	users       UserStore
	groups      GroupStore
	permissions PermissionStore
	notifier    Notifier
}

func NewDirectoryService(stores *Stores, notifier Notifier) *DirectoryService {
	return &DirectoryService{
		folders:     stores.Folders,
		users:       stores.Users,
		groups:      stores.Groups,
		permissions: stores.Permissions,
		notifier:    notifier,
	}
}

func (s *DirectoryService) CreateUser(ctx context.Context, name, role string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: user name cannot be empty", utils.ErrInvalidArgument)
	}
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", utils.ErrInvalidArgument, role)
	}

	now := time.Now()
	user := &models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Role:      role,
		Groups:    []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	utils.LogInfo("Created %s %q (%s)", role, name, user.ID.Hex())
	return user, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *DirectoryService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if users == nil && err == nil {
		users = []models.User{}
	}
	return users, err
}

func (s *DirectoryService) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name cannot be empty", utils.ErrInvalidArgument)
	}

	now := time.Now()
	group := &models.Group{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Members:   []primitive.ObjectID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	utils.LogInfo("Created group %q (%s)", name, group.ID.Hex())
	return group, nil
}

func (s *DirectoryService) GetGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	return s.groups.FindByID(ctx, id)
}

func (s *DirectoryService) ListGroups(ctx context.Context) ([]models.Group, error) {
	groups, err := s.groups.List(ctx)
	if groups == nil && err == nil {
		groups = []models.Group{}
	}
	return groups, err
}

// AddMember puts the user in the group. Both records must exist.
func (s *DirectoryService) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}

	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	if err := s.users.AddGroup(ctx, userID, groupID); err != nil {
		return err
	}

	s.notifyGroupFolders(ctx, models.UserScope(userID), s.groupFolders(ctx, groupID))
	return nil
}

// RemoveMember takes the user out of the group. The membership is dropped
// from the user first so access checks stop honouring it immediately.
func (s *DirectoryService) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		return err
	}

	if err := s.users.RemoveGroup(ctx, userID, groupID); err != nil {
		return err
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}

	s.notifyGroupFolders(ctx, models.UserScope(userID), s.groupFolders(ctx, groupID))
	return nil
}

// DeleteGroup removes the group's ACL entries, then the membership on every
// user, then the group itself, so no reader sees a stale grant for a group
// that is gone.
func (s *DirectoryService) DeleteGroup(ctx context.Context, groupID primitive.ObjectID) error {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return err
	}

	affected := s.groupFolders(ctx, group.ID)

	entries, err := s.permissions.DeleteByGroup(ctx, group.ID)
	if err != nil {
		return err
	}
	members, err := s.users.RemoveGroupFromAll(ctx, group.ID)
	if err != nil {
		return err
	}
	if err := s.groups.Delete(ctx, group.ID); err != nil {
		return err
	}

	utils.LogInfo("Deleted group %q: %d permission entries, %d members", group.Name, entries, members)

	s.notifyGroupFolders(ctx, models.GlobalScope, affected)
	return nil
}

// groupFolders returns the folders the group holds ACL entries on. It only
// feeds notifications, so lookup failures yield an empty list.
func (s *DirectoryService) groupFolders(ctx context.Context, groupID primitive.ObjectID) []models.Folder {
	entries, err := s.permissions.FindByGroup(ctx, groupID)
	if err != nil {
		utils.LogDebug("Skipping permission update for group %s: %v", groupID.Hex(), err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ResourceID)
	}
	folders, err := s.folders.FindByIDs(ctx, ids)
	if err != nil {
		utils.LogDebug("Skipping permission update for group %s: %v", groupID.Hex(), err)
		return nil
	}
	return folders
}

// notifyGroupFolders sends one permission:update per folder whose access
// changed with the group. A group without grants changes nothing.
func (s *DirectoryService) notifyGroupFolders(ctx context.Context, scope models.Scope, folders []models.Folder) {
	for _, folder := range folders {
		s.notifier.Notify(ctx, models.EventPermissionUpdate, scope, models.PermissionUpdatePayload{
			FolderPath: folder.Path,
			FolderID:   folder.ID.Hex(),
		})
	}
}
