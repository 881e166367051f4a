package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

// FolderRef names a folder either by path or by an already loaded record.
type FolderRef struct {
	path   string
	folder *models.Folder
}

func RefPath(path string) FolderRef {
	return FolderRef{path: path}
}

func RefFolder(folder *models.Folder) FolderRef {
	return FolderRef{folder: folder}
}

// PermissionService answers access questions. It only reads.
type PermissionService struct {
	folders     FolderStore
	permissions PermissionStore
	users       UserStore
}

func NewPermissionService(stores *Stores) *PermissionService {
	return &PermissionService{
		folders:     stores.Folders,
		permissions: stores.Permissions,
		users:       stores.Users,
	}
}

// resolvedRef is a FolderRef after normalisation: either the root or a
// concrete folder, or neither when no record backs the path.
type resolvedRef struct {
	root   bool
	folder *models.Folder
}

func (s *PermissionService) resolve(ctx context.Context, ref FolderRef) (resolvedRef, error) {
	if ref.folder != nil {
		return resolvedRef{folder: ref.folder}, nil
	}

	if ref.path == "" {
		return resolvedRef{root: true}, nil
	}

	folder, err := s.folders.FindByPath(ctx, ref.path)
	if errors.Is(err, utils.ErrNotFound) {
		return resolvedRef{}, nil
	} else if err != nil {
		return resolvedRef{}, fmt.Errorf("failed to load folder: %w", err)
	}
	return resolvedRef{folder: folder}, nil
}

// normalizeRef validates a path reference before anything else runs.
func normalizeRef(ref FolderRef) (FolderRef, error) {
	if ref.folder != nil {
		return ref, nil
	}
	clean, err := utils.NormalizeRelativePath(ref.path)
	if err != nil {
		return FolderRef{}, err
	}
	return FolderRef{path: clean}, nil
}

// CanAccess applies, in order: admin override, root visibility, ownership,
// the allow-list, public read, then direct and group ACL entries.
func (s *PermissionService) CanAccess(ctx context.Context, identity models.Identity, ref FolderRef, level models.AccessLevel) (bool, error) {
	ref, err := normalizeRef(ref)
	if err != nil {
		return false, err
	}
	if !level.Valid() {
		return false, fmt.Errorf("%w: unknown access level %q", utils.ErrInvalidArgument, level)
	}

	if identity.IsAdmin() {
		return true, nil
	}
	if identity.IsAnonymous() {
		return false, utils.ErrUnauthorized
	}

	resolved, err := s.resolve(ctx, ref)
	if err != nil {
		return false, err
	}
	if resolved.root {
		return true, nil
	}
	if resolved.folder == nil {
		return false, nil
	}

	if implicitAccess(identity, resolved.folder, level) {
		return true, nil
	}

	entries, err := s.permissions.FindByResource(ctx, resolved.folder.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load permissions: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	groups, err := s.groupsOf(ctx, identity.ID)
	if err != nil {
		return false, err
	}
	return aclGrants(identity.ID, groups, entries, level), nil
}

// RequireAccess is CanAccess that turns a deny into ErrAccessDenied.
func (s *PermissionService) RequireAccess(ctx context.Context, identity models.Identity, ref FolderRef, level models.AccessLevel) error {
	ok, err := s.CanAccess(ctx, identity, ref, level)
	if err != nil {
		return err
	}
	if !ok {
		return utils.ErrAccessDenied
	}
	return nil
}

// FilterAccessible keeps the paths the identity may read. Folders and ACL
// entries are loaded once for the whole batch. Invalid paths and paths with
// no folder record are dropped.
func (s *PermissionService) FilterAccessible(ctx context.Context, identity models.Identity, paths []string) ([]string, error) {
	cleanPaths := make([]string, len(paths))
	valid := make([]bool, len(paths))
	var lookup []string
	for i, p := range paths {
		clean, err := utils.NormalizeRelativePath(p)
		if err != nil {
			continue
		}
		cleanPaths[i] = clean
		valid[i] = true
		if clean != "" {
			lookup = append(lookup, clean)
		}
	}

	result := make([]string, 0, len(paths))
	if identity.IsAdmin() {
		for i, p := range paths {
			if valid[i] {
				result = append(result, p)
			}
		}
		return result, nil
	}
	if identity.IsAnonymous() {
		return nil, utils.ErrUnauthorized
	}

	folders, err := s.folders.FindByPaths(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to load folders: %w", err)
	}
	byPath := make(map[string]*models.Folder, len(folders))
	for i := range folders {
		byPath[folders[i].Path] = &folders[i]
	}

	// Only folders not settled by the implicit rules need ACL entries.
	allowed := make(map[string]bool, len(folders))
	var pending []primitive.ObjectID
	for path, folder := range byPath {
		if implicitAccess(identity, folder, models.AccessRead) {
			allowed[path] = true
			continue
		}
		pending = append(pending, folder.ID)
	}

	if len(pending) > 0 {
		entries, err := s.permissions.FindByResources(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("failed to load permissions: %w", err)
		}
		if len(entries) > 0 {
			groups, err := s.groupsOf(ctx, identity.ID)
			if err != nil {
				return nil, err
			}
			byResource := make(map[primitive.ObjectID][]models.PermissionEntry)
			for _, entry := range entries {
				byResource[entry.ResourceID] = append(byResource[entry.ResourceID], entry)
			}
			for path, folder := range byPath {
				if allowed[path] {
					continue
				}
				if aclGrants(identity.ID, groups, byResource[folder.ID], models.AccessRead) {
					allowed[path] = true
				}
			}
		}
	}

	for i, p := range paths {
		if !valid[i] {
			continue
		}
		if cleanPaths[i] == "" || allowed[cleanPaths[i]] {
			result = append(result, p)
		}
	}
	return result, nil
}

// groupsOf reads the user's memberships. A user without a record has none.
func (s *PermissionService) groupsOf(ctx context.Context, userID primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	groups := make(map[primitive.ObjectID]bool, len(user.Groups))
	for _, id := range user.Groups {
		groups[id] = true
	}
	return groups, nil
}

func implicitAccess(identity models.Identity, folder *models.Folder, level models.AccessLevel) bool {
	if folder.OwnerID == identity.ID {
		return true
	}
	if folder.IsAllowed(identity.ID) {
		return true
	}
	return level == models.AccessRead && folder.IsPublic
}

func aclGrants(userID primitive.ObjectID, groups map[primitive.ObjectID]bool, entries []models.PermissionEntry, level models.AccessLevel) bool {
	for _, entry := range entries {
		if !entry.Access.Satisfies(level) {
			continue
		}
		switch entry.PrincipalType {
		case models.PrincipalUser:
			if entry.Principal() == userID {
				return true
			}
		case models.PrincipalGroup:
			if groups[entry.Principal()] {
				return true
			}
		}
	}
	return false
}
