package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

func (r SyncResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// SyncService reconciles the folder records with the directories under the
// storage root. Callers must not run two syncs at once; see jobs.SyncRunner.
type SyncService struct {
	fs            *FilesystemService
	folders       FolderStore
	notifier      Notifier
	defaultPublic bool
}

func NewSyncService(fs *FilesystemService, stores *Stores, notifier Notifier, defaultPublic bool) *SyncService {
	return &SyncService{
		fs:            fs,
		folders:       stores.Folders,
		notifier:      notifier,
		defaultPublic: defaultPublic,
	}
}

type syncFrame struct {
	path     string
	parentID *primitive.ObjectID
}

// Sync walks the tree depth first with an explicit stack. New folders are
// staged with ids allocated up front so their children can point at them
// before anything is written. Subtrees that cannot be read are skipped.
func (s *SyncService) Sync(ctx context.Context, admin models.Identity) (SyncResult, error) {
	var result SyncResult
	if !admin.IsAdmin() {
		return result, utils.ErrAccessDenied
	}

	if err := s.fs.CheckRoot(); err != nil {
		return result, err
	}
	rootEntries, err := s.fs.ListEntries("")
	if err != nil {
		return result, fmt.Errorf("%w: %v", utils.ErrStorageUnavailable, err)
	}

	existing, err := s.folders.All(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load folders: %w", err)
	}
	byPath := make(map[string]*models.Folder, len(existing))
	for i := range existing {
		byPath[existing[i].Path] = &existing[i]
	}

	var (
		toInsert   []models.Folder
		toReparent []Reparent
		found      = make(map[string]bool, len(existing))
		stack      []syncFrame
	)
	pushChildren := func(parent string, parentID *primitive.ObjectID, entries []Entry) {
		// Reverse order so names are visited alphabetically.
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].IsDirectory {
				stack = append(stack, syncFrame{path: utils.JoinRelativePath(parent, entries[i].Name), parentID: parentID})
			}
		}
	}
	pushChildren("", nil, rootEntries)

	now := time.Now()
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if found[frame.path] {
			continue
		}
		found[frame.path] = true

		var id primitive.ObjectID
		if record, ok := byPath[frame.path]; ok {
			id = record.ID
			if !sameParent(record.ParentID, frame.parentID) {
				toReparent = append(toReparent, Reparent{ID: record.ID, ParentID: frame.parentID})
			}
		} else {
			id = primitive.NewObjectID()
			toInsert = append(toInsert, models.Folder{
				ID:           id,
				Name:         lastSegment(frame.path),
				Path:         frame.path,
				ParentID:     frame.parentID,
				OwnerID:      admin.ID,
				IsPublic:     s.defaultPublic,
				AllowedUsers: []primitive.ObjectID{},
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}

		entries, err := s.fs.ListEntries(frame.path)
		if err != nil {
			utils.LogDebug("Skipping unreadable directory %q: %v", frame.path, err)
			continue
		}
		childParent := id
		pushChildren(frame.path, &childParent, entries)
	}

	var orphaned []primitive.ObjectID
	for path, record := range byPath {
		if !found[path] {
			orphaned = append(orphaned, record.ID)
		}
	}

	added, winners, err := s.insertStaged(ctx, toInsert)
	if err != nil {
		return result, err
	}
	result.Added = added
	for i := range toReparent {
		toReparent[i].ParentID = remapParent(toReparent[i].ParentID, winners)
	}

	updated, err := s.folders.Reparent(ctx, toReparent)
	if err != nil {
		return result, err
	}
	result.Updated = int(updated)

	removed, err := s.folders.DeleteByIDs(ctx, orphaned)
	if err != nil {
		return result, err
	}
	result.Removed = int(removed)

	utils.LogInfo("Sync completed: added=%d updated=%d removed=%d", result.Added, result.Updated, result.Removed)

	if result.Changed() {
		s.notifier.Notify(ctx, models.EventGalleryRefresh, models.GlobalScope, models.GalleryRefreshPayload{Reason: "sync"})
	}
	return result, nil
}

// insertStaged writes staged folders one depth at a time. A path registered
// concurrently keeps the other writer's record; staged children are pointed
// at that record before their own depth is written. The returned map goes
// from the staged id to the winning id.
func (s *SyncService) insertStaged(ctx context.Context, staged []models.Folder) (int, map[primitive.ObjectID]primitive.ObjectID, error) {
	winners := make(map[primitive.ObjectID]primitive.ObjectID)
	if len(staged) == 0 {
		return 0, winners, nil
	}

	byDepth := make(map[int][]models.Folder)
	depths := make([]int, 0)
	for _, folder := range staged {
		depth := len(utils.PathSegments(folder.Path))
		if _, ok := byDepth[depth]; !ok {
			depths = append(depths, depth)
		}
		byDepth[depth] = append(byDepth[depth], folder)
	}
	sort.Ints(depths)

	added := 0
	for _, depth := range depths {
		batch := byDepth[depth]
		stagedIDs := make(map[string]primitive.ObjectID, len(batch))
		for i := range batch {
			batch[i].ParentID = remapParent(batch[i].ParentID, winners)
			stagedIDs[batch[i].Path] = batch[i].ID
		}

		inserted, err := s.folders.InsertMany(ctx, batch)
		if err != nil {
			return added, winners, err
		}
		added += inserted.Inserted
		if len(inserted.Skipped) == 0 {
			continue
		}

		existing, err := s.folders.FindByPaths(ctx, inserted.Skipped)
		if err != nil {
			return added, winners, fmt.Errorf("failed to load concurrently registered folders: %w", err)
		}
		for _, folder := range existing {
			if id, ok := stagedIDs[folder.Path]; ok {
				winners[id] = folder.ID
			}
		}
		utils.LogDebug("Sync kept %d concurrently registered folders at depth %d", len(existing), depth)
	}
	return added, winners, nil
}

func remapParent(parentID *primitive.ObjectID, winners map[primitive.ObjectID]primitive.ObjectID) *primitive.ObjectID {
	if parentID == nil {
		return nil
	}
	if winner, ok := winners[*parentID]; ok {
		return &winner
	}
	return parentID
}

func sameParent(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func lastSegment(path string) string {
	segments := utils.PathSegments(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
