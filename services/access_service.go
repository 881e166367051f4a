package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/models"
	"mediavault/utils"
)

const DefaultBulkChunkSize = 30

type BulkResult struct {
	Requested int `json:"requested"`
	Resolved  int `json:"resolved"`
	Modified  int `json:"modified"`
}

// AccessService changes the public flag and allow-list of folders, optionally
// down their whole subtree.
type AccessService struct {
	folders   FolderStore
	notifier  Notifier
	chunkSize int
}

func NewAccessService(stores *Stores, notifier Notifier, chunkSize int) *AccessService {
	if chunkSize <= 0 {
		chunkSize = DefaultBulkChunkSize
	}
	return &AccessService{
		folders:   stores.Folders,
		notifier:  notifier,
		chunkSize: chunkSize,
	}
}

// SetFolderAccess overwrites isPublic and allowedUsers on the folder and,
// when recursive, on every descendant. A missing folder is reported before
// any write.
func (s *AccessService) SetFolderAccess(ctx context.Context, folderID primitive.ObjectID, isPublic bool, allowedUsers []primitive.ObjectID, recursive bool) (int64, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return 0, err
	}

	if allowedUsers == nil {
		allowedUsers = []primitive.ObjectID{}
	}
	selector := AccessSelector{IDs: []primitive.ObjectID{folder.ID}}
	if recursive {
		selector.DescendantsOf = []string{folder.Path}
	}

	modified, err := s.folders.UpdateAccess(ctx, selector, AccessUpdate{
		IsPublic:     &isPublic,
		AllowedUsers: &allowedUsers,
	})
	if err != nil {
		return 0, err
	}

	utils.LogInfo("Access on %q set: public=%t allowed=%d recursive=%t (%d folders)",
		folder.Path, isPublic, len(allowedUsers), recursive, modified)

	s.notifier.Notify(ctx, models.EventPermissionUpdate, models.GlobalScope, models.PermissionUpdatePayload{
		FolderPath:  folder.Path,
		FolderID:    folder.ID.Hex(),
		IsRecursive: recursive,
	})
	return modified, nil
}

// BulkSetPublic applies one public flag to many folders. Ids that do not
// resolve are skipped; if none resolve nothing is written. Targets are
// applied in chunks, each as a single combined update.
func (s *AccessService) BulkSetPublic(ctx context.Context, folderIDs []primitive.ObjectID, isPublic bool, recursive bool) (BulkResult, error) {
	result := BulkResult{Requested: len(folderIDs)}
	if len(folderIDs) == 0 {
		return result, fmt.Errorf("%w: no folders given", utils.ErrInvalidArgument)
	}

	folders, err := s.folders.FindByIDs(ctx, folderIDs)
	if err != nil {
		return result, err
	}
	if len(folders) == 0 {
		return result, fmt.Errorf("none of %d folders: %w", len(folderIDs), utils.ErrNotFound)
	}
	result.Resolved = len(folders)

	update := AccessUpdate{IsPublic: &isPublic}
	for start := 0; start < len(folders); start += s.chunkSize {
		end := min(start+s.chunkSize, len(folders))
		chunk := folders[start:end]

		selector := AccessSelector{IDs: make([]primitive.ObjectID, 0, len(chunk))}
		for _, folder := range chunk {
			selector.IDs = append(selector.IDs, folder.ID)
			if recursive {
				selector.DescendantsOf = append(selector.DescendantsOf, folder.Path)
			}
		}

		modified, err := s.folders.UpdateAccess(ctx, selector, update)
		if err != nil {
			return result, fmt.Errorf("chunk %d-%d: %w", start, end, err)
		}
		result.Modified += int(modified)
	}

	utils.LogInfo("Bulk access set: public=%t recursive=%t resolved=%d/%d modified=%d",
		isPublic, recursive, result.Resolved, result.Requested, result.Modified)

	for _, folder := range folders {
		s.notifier.Notify(ctx, models.EventPermissionUpdate, models.GlobalScope, models.PermissionUpdatePayload{
			FolderPath:  folder.Path,
			FolderID:    folder.ID.Hex(),
			IsRecursive: recursive,
			IsBulk:      true,
		})
	}
	return result, nil
}
