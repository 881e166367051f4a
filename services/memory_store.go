package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

// NewMemoryStores returns process-local stores with the same semantics as the
// Mongo ones. Used with STORE_BACKEND=memory and in tests.
func NewMemoryStores() *Stores {
	return &Stores{
		Folders:     NewMemoryFolderStore(),
		Permissions: NewMemoryPermissionStore(),
		Users:       NewMemoryUserStore(),
		Groups:      NewMemoryGroupStore(),
	}
}

type MemoryFolderStore struct {
	mu     sync.RWMutex
	byID   map[primitive.ObjectID]*models.Folder
	byPath map[string]primitive.ObjectID
}

func NewMemoryFolderStore() *MemoryFolderStore {
	return &MemoryFolderStore{
		byID:   make(map[primitive.ObjectID]*models.Folder),
		byPath: make(map[string]primitive.ObjectID),
	}
}

func cloneFolder(f *models.Folder) models.Folder {
	c := *f
	if f.ParentID != nil {
		parent := *f.ParentID
		c.ParentID = &parent
	}
	c.AllowedUsers = append([]primitive.ObjectID{}, f.AllowedUsers...)
	return c
}

func (s *MemoryFolderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id.Hex(), utils.ErrNotFound)
	}
	c := cloneFolder(f)
	return &c, nil
}

func (s *MemoryFolderStore) FindByPath(ctx context.Context, path string) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("folder %q: %w", path, utils.ErrNotFound)
	}
	c := cloneFolder(s.byID[id])
	return &c, nil
}

func (s *MemoryFolderStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var folders []models.Folder
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if f, ok := s.byID[id]; ok {
			folders = append(folders, cloneFolder(f))
		}
	}
	return folders, nil
}

func (s *MemoryFolderStore) FindByPaths(ctx context.Context, paths []string) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var folders []models.Folder
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if id, ok := s.byPath[p]; ok {
			folders = append(folders, cloneFolder(s.byID[id]))
		}
	}
	return folders, nil
}

func (s *MemoryFolderStore) FindTree(ctx context.Context, path string) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var folders []models.Folder
	for _, f := range s.byID {
		if f.Path == path || isStrictDescendant(f.Path, path) {
			folders = append(folders, cloneFolder(f))
		}
	}
	sortFoldersByPath(folders)
	return folders, nil
}

func (s *MemoryFolderStore) All(ctx context.Context) ([]models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folders := make([]models.Folder, 0, len(s.byID))
	for _, f := range s.byID {
		folders = append(folders, cloneFolder(f))
	}
	sortFoldersByPath(folders)
	return folders, nil
}

func (s *MemoryFolderStore) Insert(ctx context.Context, folder *models.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(folder)
}

func (s *MemoryFolderStore) insertLocked(folder *models.Folder) error {
	if _, taken := s.byPath[folder.Path]; taken {
		return fmt.Errorf("folder %q: %w", folder.Path, utils.ErrConflict)
	}
	if folder.ID.IsZero() {
		folder.ID = primitive.NewObjectID()
	}
	if _, taken := s.byID[folder.ID]; taken {
		return fmt.Errorf("folder %s: %w", folder.ID.Hex(), utils.ErrConflict)
	}
	if folder.AllowedUsers == nil {
		folder.AllowedUsers = []primitive.ObjectID{}
	}
	c := cloneFolder(folder)
	s.byID[c.ID] = &c
	s.byPath[c.Path] = c.ID
	return nil
}

// InsertMany skips folders whose path is already taken, like an unordered
// Mongo insert that hits the unique index.
func (s *MemoryFolderStore) InsertMany(ctx context.Context, folders []models.Folder) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result InsertResult
	for i := range folders {
		if err := s.insertLocked(&folders[i]); err != nil {
			utils.LogDebug("Skipping folder insert for %q: %v", folders[i].Path, err)
			result.Skipped = append(result.Skipped, folders[i].Path)
			continue
		}
		result.Inserted++
	}
	return result, nil
}

func (s *MemoryFolderStore) Reparent(ctx context.Context, moves []Reparent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	now := time.Now()
	for _, move := range moves {
		f, ok := s.byID[move.ID]
		if !ok {
			continue
		}
		if move.ParentID == nil {
			f.ParentID = nil
		} else {
			parent := *move.ParentID
			f.ParentID = &parent
		}
		f.UpdatedAt = now
		modified++
	}
	return modified, nil
}

func (s *MemoryFolderStore) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		f, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byPath, f.Path)
		delete(s.byID, id)
		deleted++
	}
	return deleted, nil
}

func (s *MemoryFolderStore) UpdateAccess(ctx context.Context, selector AccessSelector, update AccessUpdate) (int64, error) {
	if selector.Empty() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[primitive.ObjectID]bool, len(selector.IDs))
	for _, id := range selector.IDs {
		ids[id] = true
	}

	var matched int64
	now := time.Now()
	for id, f := range s.byID {
		if !ids[id] && !descendsFromAny(f.Path, selector.DescendantsOf) {
			continue
		}
		if update.IsPublic != nil {
			f.IsPublic = *update.IsPublic
		}
		if update.AllowedUsers != nil {
			f.AllowedUsers = append([]primitive.ObjectID{}, (*update.AllowedUsers)...)
		}
		f.UpdatedAt = now
		matched++
	}
	return matched, nil
}

func descendsFromAny(path string, ancestors []string) bool {
	for _, ancestor := range ancestors {
		if isStrictDescendant(path, ancestor) {
			return true
		}
	}
	return false
}

func sortFoldersByPath(folders []models.Folder) {
	sort.Slice(folders, func(i, j int) bool { return folders[i].Path < folders[j].Path })
}

type permissionKey struct {
	resource      primitive.ObjectID
	principalType models.PrincipalType
	principal     primitive.ObjectID
}

type MemoryPermissionStore struct {
	mu      sync.RWMutex
	entries map[permissionKey]models.PermissionEntry
}

func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{entries: make(map[permissionKey]models.PermissionEntry)}
}

func keyOf(entry *models.PermissionEntry) permissionKey {
	return permissionKey{resource: entry.ResourceID, principalType: entry.PrincipalType, principal: entry.Principal()}
}

func (s *MemoryPermissionStore) collect(match func(models.PermissionEntry) bool) []models.PermissionEntry {
	var entries []models.PermissionEntry
	for _, entry := range s.entries {
		if match(entry) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].GrantedAt.Before(entries[j].GrantedAt) })
	return entries
}

func (s *MemoryPermissionStore) FindByResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.PermissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(e models.PermissionEntry) bool { return e.ResourceID == resourceID }), nil
}

func (s *MemoryPermissionStore) FindByResources(ctx context.Context, resourceIDs []primitive.ObjectID) ([]models.PermissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[primitive.ObjectID]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = true
	}
	return s.collect(func(e models.PermissionEntry) bool { return wanted[e.ResourceID] }), nil
}

func (s *MemoryPermissionStore) FindByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.PermissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(e models.PermissionEntry) bool {
		return e.PrincipalType == models.PrincipalGroup && e.Principal() == groupID
	}), nil
}

// Upsert replaces the access level of an existing entry for the same
// (resource, principal) and keeps its id.
func (s *MemoryPermissionStore) Upsert(ctx context.Context, entry models.PermissionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(&entry)
	if existing, ok := s.entries[key]; ok {
		entry.ID = existing.ID
	} else if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryPermissionStore) Delete(ctx context.Context, resourceID primitive.ObjectID, principalType models.PrincipalType, principalID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := permissionKey{resource: resourceID, principalType: principalType, principal: principalID}
	if _, ok := s.entries[key]; !ok {
		return 0, nil
	}
	delete(s.entries, key)
	return 1, nil
}

func (s *MemoryPermissionStore) deleteWhere(match func(models.PermissionEntry) bool) int64 {
	var deleted int64
	for key, entry := range s.entries {
		if match(entry) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted
}

func (s *MemoryPermissionStore) DeleteByResources(ctx context.Context, resourceIDs []primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[primitive.ObjectID]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = true
	}
	return s.deleteWhere(func(e models.PermissionEntry) bool { return wanted[e.ResourceID] }), nil
}

func (s *MemoryPermissionStore) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(func(e models.PermissionEntry) bool {
		return e.PrincipalType == models.PrincipalGroup && e.Principal() == groupID
	}), nil
}

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func cloneUser(u *models.User) models.User {
	c := *u
	c.Groups = append([]primitive.ObjectID{}, u.Groups...)
	return c
}

func (s *MemoryUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), utils.ErrNotFound)
	}
	c := cloneUser(u)
	return &c, nil
}

func (s *MemoryUserStore) List(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (s *MemoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, taken := s.users[user.ID]; taken {
		return fmt.Errorf("user %s: %w", user.ID.Hex(), utils.ErrConflict)
	}
	if user.Groups == nil {
		user.Groups = []primitive.ObjectID{}
	}
	c := cloneUser(user)
	s.users[c.ID] = &c
	return nil
}

func (s *MemoryUserStore) AddGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID.Hex(), utils.ErrNotFound)
	}
	u.Groups = addToSet(u.Groups, groupID)
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryUserStore) RemoveGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID.Hex(), utils.ErrNotFound)
	}
	u.Groups = pull(u.Groups, groupID)
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryUserStore) RemoveGroupFromAll(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	for _, u := range s.users {
		before := len(u.Groups)
		u.Groups = pull(u.Groups, groupID)
		if len(u.Groups) != before {
			u.UpdatedAt = time.Now()
			modified++
		}
	}
	return modified, nil
}

type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[primitive.ObjectID]*models.Group
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[primitive.ObjectID]*models.Group)}
}

func cloneGroup(g *models.Group) models.Group {
	c := *g
	c.Members = append([]primitive.ObjectID{}, g.Members...)
	return c
}

func (s *MemoryGroupStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id.Hex(), utils.ErrNotFound)
	}
	c := cloneGroup(g)
	return &c, nil
}

func (s *MemoryGroupStore) List(ctx context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, cloneGroup(g))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *MemoryGroupStore) Create(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	for _, g := range s.groups {
		if g.Name == group.Name {
			return fmt.Errorf("group %q: %w", group.Name, utils.ErrConflict)
		}
	}
	if group.Members == nil {
		group.Members = []primitive.ObjectID{}
	}
	c := cloneGroup(group)
	s.groups[c.ID] = &c
	return nil
}

func (s *MemoryGroupStore) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID.Hex(), utils.ErrNotFound)
	}
	g.Members = addToSet(g.Members, userID)
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryGroupStore) RemoveMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID.Hex(), utils.ErrNotFound)
	}
	g.Members = pull(g.Members, userID)
	g.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryGroupStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return fmt.Errorf("group %s: %w", id.Hex(), utils.ErrNotFound)
	}
	delete(s.groups, id)
	return nil
}

func addToSet(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func pull(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
