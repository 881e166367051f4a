package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

// GrantService manages ACL entries on folders.
type GrantService struct {
	folders     FolderStore
	permissions PermissionStore
	users       UserStore
	groups      GroupStore
	notifier    Notifier
}

func NewGrantService(stores *Stores, notifier Notifier) *GrantService {
	return &GrantService{
		folders:     stores.Folders,
		permissions: stores.Permissions,
		users:       stores.Users,
		groups:      stores.Groups,
		notifier:    notifier,
	}
}

func (s *GrantService) principalExists(ctx context.Context, principalID primitive.ObjectID, principalType models.PrincipalType) error {
	var err error
	switch principalType {
	case models.PrincipalUser:
		_, err = s.users.FindByID(ctx, principalID)
	case models.PrincipalGroup:
		_, err = s.groups.FindByID(ctx, principalID)
	default:
		return fmt.Errorf("%w: unknown principal type %q", utils.ErrInvalidArgument, principalType)
	}
	return err
}

// SetPermission grants access to a user or group. An existing entry for the
// same principal is replaced.
func (s *GrantService) SetPermission(ctx context.Context, folderID, principalID primitive.ObjectID, principalType models.PrincipalType, access models.AccessLevel, grantedBy primitive.ObjectID) (*models.PermissionEntry, error) {
	if !principalType.Valid() {
		return nil, fmt.Errorf("%w: unknown principal type %q", utils.ErrInvalidArgument, principalType)
	}
	if !access.Valid() {
		return nil, fmt.Errorf("%w: unknown access level %q", utils.ErrInvalidArgument, access)
	}

	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.principalExists(ctx, principalID, principalType); err != nil {
		return nil, err
	}

	entry := models.NewPermissionEntry(folder.ID, principalID, principalType, access)
	entry.GrantedBy = grantedBy
	entry.GrantedAt = time.Now()
	if err := s.permissions.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	utils.LogInfo("Granted %s on %q to %s %s", access, folder.Path, principalType, principalID.Hex())

	s.notifier.Notify(ctx, models.EventPermissionUpdate, models.GlobalScope, models.PermissionUpdatePayload{
		FolderPath: folder.Path,
		FolderID:   folder.ID.Hex(),
	})
	return &entry, nil
}

// RevokePermission deletes the principal's entry. A revoked user is told on
// their own room; for a group every member is told.
func (s *GrantService) RevokePermission(ctx context.Context, folderID, principalID primitive.ObjectID, principalType models.PrincipalType) error {
	if !principalType.Valid() {
		return fmt.Errorf("%w: unknown principal type %q", utils.ErrInvalidArgument, principalType)
	}

	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return err
	}

	deleted, err := s.permissions.Delete(ctx, folder.ID, principalType, principalID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("permission for %s %s on %q: %w", principalType, principalID.Hex(), folder.Path, utils.ErrNotFound)
	}

	utils.LogInfo("Revoked access on %q from %s %s", folder.Path, principalType, principalID.Hex())

	revoke := models.RevokeAccessPayload{FolderID: folder.ID.Hex()}
	switch principalType {
	case models.PrincipalUser:
		s.notifier.Notify(ctx, models.EventRevokeAccess, models.UserScope(principalID), revoke)
	case models.PrincipalGroup:
		s.notifyGroupMembers(ctx, principalID, revoke)
		s.notifier.Notify(ctx, models.EventPermissionUpdate, models.GlobalScope, models.PermissionUpdatePayload{
			FolderPath: folder.Path,
			FolderID:   folder.ID.Hex(),
		})
	}
	return nil
}

// notifyGroupMembers is best effort; a group that cannot be read is skipped.
func (s *GrantService) notifyGroupMembers(ctx context.Context, groupID primitive.ObjectID, revoke models.RevokeAccessPayload) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		utils.LogDebug("Skipping member revoke fan-out for group %s: %v", groupID.Hex(), err)
		return
	}
	for _, member := range group.Members {
		s.notifier.Notify(ctx, models.EventRevokeAccess, models.UserScope(member), revoke)
	}
}

func (s *GrantService) ListPermissions(ctx context.Context, folderID primitive.ObjectID) ([]models.PermissionEntry, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.permissions.FindByResource(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.PermissionEntry{}
	}
	return entries, nil
}
