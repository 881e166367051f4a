package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type FolderSummary struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsPublic bool   `json:"is_public"`
	Synced   bool   `json:"synced"`
}

type FolderListing struct {
	Path       string            `json:"path"`
	Folder     *models.Folder    `json:"folder,omitempty"`
	CanWrite   bool              `json:"can_write"`
	Folders    []FolderSummary   `json:"folders"`
	Files      []ContentFile     `json:"files"`
	Pagination *utils.Pagination `json:"-"`
}

// GalleryService is the content listing layer. Every operation checks access
// through the PermissionService before touching the disk.
type GalleryService struct {
	fs            *FilesystemService
	perms         *PermissionService
	folders       FolderStore
	permissions   PermissionStore
	notifier      Notifier
	mirror        Mirror
	defaultPublic bool
}

func NewGalleryService(fs *FilesystemService, perms *PermissionService, stores *Stores, notifier Notifier, mirror Mirror, defaultPublic bool) *GalleryService {
	if mirror == nil {
		mirror = NoopMirror{}
	}
	return &GalleryService{
		fs:            fs,
		perms:         perms,
		folders:       stores.Folders,
		permissions:   stores.Permissions,
		notifier:      notifier,
		mirror:        mirror,
		defaultPublic: defaultPublic,
	}
}

// requireContainerWrite checks write access on a folder that will receive
// new content. Writing into the root is reserved for admins.
func requireContainerWrite(ctx context.Context, perms *PermissionService, identity models.Identity, path string) error {
	if path == "" && !identity.IsAdmin() {
		if identity.IsAnonymous() {
			return utils.ErrUnauthorized
		}
		return utils.ErrAccessDenied
	}
	return perms.RequireAccess(ctx, identity, RefPath(path), models.AccessWrite)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	return page, min(limit, MaxPageSize)
}

func (s *GalleryService) ListFolder(ctx context.Context, identity models.Identity, path string, page, limit int) (*FolderListing, error) {
	clean, err := utils.NormalizeRelativePath(path)
	if err != nil {
		return nil, err
	}
	if err := s.perms.RequireAccess(ctx, identity, RefPath(clean), models.AccessRead); err != nil {
		return nil, err
	}

	entries, err := s.fs.ListEntries(clean)
	if err != nil {
		return nil, err
	}

	listing := &FolderListing{Path: clean, Folders: []FolderSummary{}}
	if clean != "" {
		if folder, err := s.folders.FindByPath(ctx, clean); err == nil {
			listing.Folder = folder
		} else if !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
	}
	listing.CanWrite = requireContainerWrite(ctx, s.perms, identity, clean) == nil

	var childPaths []string
	for _, entry := range entries {
		if entry.IsDirectory {
			childPaths = append(childPaths, utils.JoinRelativePath(clean, entry.Name))
		}
	}
	visible, err := s.perms.FilterAccessible(ctx, identity, childPaths)
	if err != nil {
		return nil, err
	}
	records, err := s.folders.FindByPaths(ctx, visible)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*models.Folder, len(records))
	for i := range records {
		byPath[records[i].Path] = &records[i]
	}
	for _, childPath := range visible {
		summary := FolderSummary{Name: lastSegment(childPath), Path: childPath}
		if record, ok := byPath[childPath]; ok {
			summary.ID = record.ID.Hex()
			summary.IsPublic = record.IsPublic
			summary.Synced = true
		}
		listing.Folders = append(listing.Folders, summary)
	}

	files, err := s.fs.ListContent(clean)
	if err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	listing.Pagination = utils.NewPagination(page, limit, int64(len(files)))
	start := min((page-1)*limit, len(files))
	end := min(start+limit, len(files))
	listing.Files = files[start:end]

	return listing, nil
}

// CreateFolder registers the folder record before creating the directory so
// content never lands in an unregistered container.
func (s *GalleryService) CreateFolder(ctx context.Context, identity models.Identity, parentPath, name string) (*models.Folder, error) {
	parent, err := utils.NormalizeRelativePath(parentPath)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateFolderName(name); err != nil {
		return nil, err
	}
	if err := requireContainerWrite(ctx, s.perms, identity, parent); err != nil {
		return nil, err
	}

	var parentID *primitive.ObjectID
	if parent != "" {
		if !s.fs.IsDir(parent) {
			return nil, fmt.Errorf("parent %q: %w", parent, utils.ErrNotFound)
		}
		parentFolder, err := s.folders.FindByPath(ctx, parent)
		if err != nil {
			return nil, err
		}
		parentID = &parentFolder.ID
	}

	path := utils.JoinRelativePath(parent, name)
	if _, _, err := s.fs.Resolve(path); err != nil {
		return nil, err
	}
	if s.fs.Exists(path) {
		return nil, fmt.Errorf("folder %q: %w", path, utils.ErrConflict)
	}

	now := time.Now()
	folder := &models.Folder{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Path:         path,
		ParentID:     parentID,
		OwnerID:      identity.ID,
		IsPublic:     s.defaultPublic,
		AllowedUsers: []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.folders.Insert(ctx, folder); err != nil {
		return nil, err
	}

	if err := s.fs.MakeDir(path); err != nil {
		if _, rollbackErr := s.folders.DeleteByIDs(ctx, []primitive.ObjectID{folder.ID}); rollbackErr != nil {
			utils.LogError("Failed to roll back folder record", rollbackErr)
		}
		return nil, err
	}

	utils.LogInfo("Folder %q created by %s", path, identity.ID.Hex())
	s.notifier.Notify(ctx, models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{
		FolderPath: parent,
		Reason:     "folder_created",
	})
	return folder, nil
}

// DeleteFolder needs admin access on the folder. ACL entries and folder
// records of the whole subtree go first, then the directory.
func (s *GalleryService) DeleteFolder(ctx context.Context, identity models.Identity, path string) error {
	clean, err := utils.NormalizeRelativePath(path)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("%w: cannot delete the storage root", utils.ErrInvalidPath)
	}
	if err := s.perms.RequireAccess(ctx, identity, RefPath(clean), models.AccessAdmin); err != nil {
		return err
	}

	tree, err := s.folders.FindTree(ctx, clean)
	if err != nil {
		return err
	}
	if len(tree) == 0 && !s.fs.Exists(clean) {
		return fmt.Errorf("folder %q: %w", clean, utils.ErrNotFound)
	}

	ids := make([]primitive.ObjectID, 0, len(tree))
	var rootID string
	for _, folder := range tree {
		ids = append(ids, folder.ID)
		if folder.Path == clean {
			rootID = folder.ID.Hex()
		}
	}

	entries, err := s.permissions.DeleteByResources(ctx, ids)
	if err != nil {
		return err
	}
	records, err := s.folders.DeleteByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveDir(clean); err != nil {
		return err
	}

	if s.mirror.Enabled() {
		if n, err := s.mirror.DeletePrefix(ctx, clean); err != nil {
			utils.LogWarning("Mirror cleanup for %q incomplete (%d removed): %v", clean, n, err)
		}
	}

	utils.LogInfo("Folder %q deleted by %s: %d records, %d permission entries", clean, identity.ID.Hex(), records, entries)

	s.notifier.Notify(ctx, models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{
		FolderPath: utils.ParentPath(clean),
		Reason:     "folder_deleted",
	})
	s.notifier.Notify(ctx, models.EventPermissionUpdate, models.GlobalScope, models.PermissionUpdatePayload{
		FolderPath:  clean,
		FolderID:    rootID,
		IsRecursive: true,
	})
	return nil
}

func splitFilePath(filePath string) (string, string, error) {
	clean, err := utils.NormalizeRelativePath(filePath)
	if err != nil {
		return "", "", err
	}
	if clean == "" {
		return "", "", fmt.Errorf("%w: file path is required", utils.ErrInvalidArgument)
	}
	return clean, utils.ParentPath(clean), nil
}

func (s *GalleryService) DeleteFile(ctx context.Context, identity models.Identity, filePath string) error {
	clean, folder, err := splitFilePath(filePath)
	if err != nil {
		return err
	}
	if err := requireContainerWrite(ctx, s.perms, identity, folder); err != nil {
		return err
	}
	if err := s.fs.RemoveFile(clean); err != nil {
		return err
	}

	if s.mirror.Enabled() {
		if err := s.mirror.Delete(ctx, clean); err != nil {
			utils.LogWarning("Failed to delete mirrored copy of %q: %v", clean, err)
		}
	}

	utils.LogInfo("File %q deleted by %s", clean, identity.ID.Hex())
	s.notifier.Notify(ctx, models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{
		FolderPath: folder,
		Reason:     "file_deleted",
	})
	return nil
}

// OpenFile returns the absolute path of a content file the identity may read.
func (s *GalleryService) OpenFile(ctx context.Context, identity models.Identity, filePath string) (string, *ContentFile, error) {
	clean, folder, err := splitFilePath(filePath)
	if err != nil {
		return "", nil, err
	}
	if err := s.perms.RequireAccess(ctx, identity, RefPath(folder), models.AccessRead); err != nil {
		return "", nil, err
	}

	abs, _, err := s.fs.Resolve(clean)
	if err != nil {
		return "", nil, err
	}
	if s.fs.IsDir(clean) {
		return "", nil, fmt.Errorf("%w: %q is a directory", utils.ErrInvalidArgument, clean)
	}
	stat, err := s.fs.Stat(clean)
	if err != nil {
		return "", nil, err
	}

	return abs, &ContentFile{
		Name:     lastSegment(clean),
		Path:     clean,
		Kind:     DetectMediaKind(clean),
		FileStat: stat,
	}, nil
}
