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

type PrepareResult struct {
	Path    string         `json:"path"`
	Folder  *models.Folder `json:"folder,omitempty"`
	Created int            `json:"created"`
}

type CompleteResult struct {
	File   ContentFile   `json:"file"`
	Mirror *MirrorResult `json:"mirror,omitempty"`
}

// UploadService is where the upload transport meets the folder mirror: it
// makes sure a destination is registered before bytes arrive and announces
// the file once it is on disk.
type UploadService struct {
	fs            *FilesystemService
	perms         *PermissionService
	folders       FolderStore
	notifier      Notifier
	mirror        Mirror
	defaultPublic bool
}

func NewUploadService(fs *FilesystemService, perms *PermissionService, stores *Stores, notifier Notifier, mirror Mirror, defaultPublic bool) *UploadService {
	if mirror == nil {
		mirror = NoopMirror{}
	}
	return &UploadService{
		fs:            fs,
		perms:         perms,
		folders:       stores.Folders,
		notifier:      notifier,
		mirror:        mirror,
		defaultPublic: defaultPublic,
	}
}

// PrepareUpload creates folder records for every missing segment of
// folderPath, one at a time from the nearest registered ancestor, and then
// the directories. The caller needs write access on that ancestor, and a
// non-admin may only create segments that do not exist on disk yet.
func (s *UploadService) PrepareUpload(ctx context.Context, identity models.Identity, folderPath string) (*PrepareResult, error) {
	clean, err := utils.NormalizeRelativePath(folderPath)
	if err != nil {
		return nil, err
	}
	segments := utils.PathSegments(clean)
	for _, segment := range segments {
		if err := utils.ValidateFolderName(segment); err != nil {
			return nil, err
		}
	}
	if _, _, err := s.fs.Resolve(clean); err != nil {
		return nil, err
	}

	prefixes := make([]string, len(segments))
	for i, segment := range segments {
		parent := ""
		if i > 0 {
			parent = prefixes[i-1]
		}
		prefixes[i] = utils.JoinRelativePath(parent, segment)
	}

	existing, err := s.folders.FindByPaths(ctx, prefixes)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*models.Folder, len(existing))
	for i := range existing {
		byPath[existing[i].Path] = &existing[i]
	}

	// nearest is the index of the deepest registered prefix, -1 for the root.
	nearest := -1
	for i := len(prefixes) - 1; i >= 0; i-- {
		if _, ok := byPath[prefixes[i]]; ok {
			nearest = i
			break
		}
	}
	ancestor := ""
	var parentID *primitive.ObjectID
	if nearest >= 0 {
		ancestor = prefixes[nearest]
		id := byPath[ancestor].ID
		parentID = &id
	}
	if err := requireContainerWrite(ctx, s.perms, identity, ancestor); err != nil {
		return nil, err
	}

	// A directory already on disk without a record stays deny-by-default
	// until a sync registers it; only an admin may claim it here.
	if !identity.IsAdmin() {
		for i := nearest + 1; i < len(prefixes); i++ {
			if s.fs.Exists(prefixes[i]) {
				return nil, fmt.Errorf("%w: %q exists but is not registered", utils.ErrAccessDenied, prefixes[i])
			}
		}
	}

	result := &PrepareResult{Path: clean}
	if nearest >= 0 {
		result.Folder = byPath[ancestor]
	}

	for i := nearest + 1; i < len(prefixes); i++ {
		folder, created, err := s.ensureFolder(ctx, identity, prefixes[i], segments[i], parentID)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		}
		id := folder.ID
		parentID = &id
		result.Folder = folder
	}

	if err := s.fs.MakeDir(clean); err != nil {
		return nil, err
	}

	if result.Created > 0 {
		utils.LogInfo("Registered %d folders for upload into %q", result.Created, clean)
	}
	return result, nil
}

// ensureFolder inserts one record. Losing a race to another uploader is not
// an error; the winner's record is used.
func (s *UploadService) ensureFolder(ctx context.Context, identity models.Identity, path, name string, parentID *primitive.ObjectID) (*models.Folder, bool, error) {
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

	err := s.folders.Insert(ctx, folder)
	if err == nil {
		return folder, true, nil
	}
	if !errors.Is(err, utils.ErrConflict) {
		return nil, false, err
	}

	winner, err := s.folders.FindByPath(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// CompleteUpload is called once the transport has written the file.
func (s *UploadService) CompleteUpload(ctx context.Context, identity models.Identity, filePath string) (*CompleteResult, error) {
	clean, folder, err := splitFilePath(filePath)
	if err != nil {
		return nil, err
	}
	if err := requireContainerWrite(ctx, s.perms, identity, folder); err != nil {
		return nil, err
	}
	if s.fs.IsDir(clean) {
		return nil, fmt.Errorf("%w: %q is a directory", utils.ErrInvalidArgument, clean)
	}
	stat, err := s.fs.Stat(clean)
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{
		File: ContentFile{
			Name:     lastSegment(clean),
			Path:     clean,
			Kind:     DetectMediaKind(clean),
			FileStat: stat,
		},
	}

	if s.mirror.Enabled() {
		abs, _, _ := s.fs.Resolve(clean)
		mirrored, err := s.mirror.Upload(ctx, clean, abs)
		if err != nil {
			utils.LogWarning("Failed to mirror %q: %v", clean, err)
		} else {
			result.Mirror = mirrored
		}
	}

	utils.LogInfo("Upload of %q completed by %s (%d bytes)", clean, identity.ID.Hex(), stat.Size)
	s.notifier.Notify(ctx, models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{
		FolderPath: folder,
		Reason:     "upload",
	})
	return result, nil
}
