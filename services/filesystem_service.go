package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mediavault/utils"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaText  MediaKind = "text"
	MediaOther MediaKind = "other"
)

var mediaKinds = map[string]MediaKind{
	".jpg": MediaImage, ".jpeg": MediaImage, ".png": MediaImage, ".gif": MediaImage,
	".webp": MediaImage, ".bmp": MediaImage, ".svg": MediaImage, ".heic": MediaImage,
	".avif": MediaImage, ".tif": MediaImage, ".tiff": MediaImage,

	".mp4": MediaVideo, ".webm": MediaVideo, ".mov": MediaVideo, ".mkv": MediaVideo,
	".avi": MediaVideo, ".m4v": MediaVideo, ".ogv": MediaVideo,

	".txt": MediaText, ".md": MediaText, ".json": MediaText, ".yaml": MediaText,
	".yml": MediaText, ".toml": MediaText, ".csv": MediaText, ".log": MediaText,
	".go": MediaText, ".js": MediaText, ".ts": MediaText, ".py": MediaText,
	".sh": MediaText, ".html": MediaText, ".css": MediaText, ".xml": MediaText,
	".c": MediaText, ".h": MediaText, ".rs": MediaText, ".java": MediaText,
}

// DetectMediaKind classifies a file by its extension.
func DetectMediaKind(name string) MediaKind {
	if kind, ok := mediaKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return MediaOther
}

type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
}

type FileStat struct {
	Size             int64 `json:"size"`
	MtimeSeconds     int64 `json:"mtime_seconds"`
	BirthtimeSeconds int64 `json:"birthtime_seconds"`
}

type ContentFile struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Kind MediaKind `json:"kind"`
	FileStat
}

// FilesystemService is a view of the storage root. All paths it accepts are
// relative to the root and normalised before they touch the disk.
type FilesystemService struct {
	root string
}

func NewFilesystemService(root string) (*FilesystemService, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	return &FilesystemService{root: filepath.Clean(abs)}, nil
}

func (s *FilesystemService) Root() string {
	return s.root
}

// Resolve maps a relative path to an absolute one inside the root and returns
// the normalised relative form alongside it.
func (s *FilesystemService) Resolve(rel string) (string, string, error) {
	clean, err := utils.NormalizeRelativePath(rel)
	if err != nil {
		return "", "", err
	}
	if clean == "" {
		return s.root, "", nil
	}

	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if !within(abs, s.root) {
		return "", "", fmt.Errorf("%w: path escapes storage root", utils.ErrInvalidPath)
	}
	if err := s.checkLinks(abs); err != nil {
		return "", "", err
	}
	return abs, clean, nil
}

func within(abs, root string) bool {
	return abs == root || strings.HasPrefix(abs, root+string(filepath.Separator))
}

// checkLinks resolves symlinks on the deepest existing ancestor of abs and
// rejects the path when the result leaves the root.
func (s *FilesystemService) checkLinks(abs string) error {
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return nil
	}
	for probe := abs; within(probe, s.root); probe = filepath.Dir(probe) {
		resolved, err := filepath.EvalSymlinks(probe)
		if err != nil {
			continue
		}
		if !within(resolved, realRoot) {
			return fmt.Errorf("%w: path leaves storage root through a link", utils.ErrInvalidPath)
		}
		return nil
	}
	return nil
}

// CheckRoot reports ErrStorageUnavailable when the root is missing or is not
// a readable directory.
func (s *FilesystemService) CheckRoot() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", utils.ErrStorageUnavailable, s.root)
	}
	f, err := os.Open(s.root)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrStorageUnavailable, err)
	}
	return f.Close()
}

// ListEntries returns the visible entries of a directory sorted by name.
// Hidden entries and symlinks are left out.
func (s *FilesystemService) ListEntries(rel string) ([]Entry, error) {
	abs, _, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("directory %q: %w", rel, utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if isHidden(de.Name()) || de.Type()&fs.ModeSymlink != 0 {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), IsDirectory: de.IsDir()})
	}
	return entries, nil
}

func (s *FilesystemService) Exists(rel string) bool {
	abs, _, err := s.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

func (s *FilesystemService) IsDir(rel string) bool {
	abs, _, err := s.Resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}

func (s *FilesystemService) Stat(rel string) (FileStat, error) {
	abs, _, err := s.Resolve(rel)
	if err != nil {
		return FileStat{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileStat{}, fmt.Errorf("file %q: %w", rel, utils.ErrNotFound)
		}
		return FileStat{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return statFile(abs, info), nil
}

// ListContent returns the content files of a directory, newest first by
// birth time and then by name.
func (s *FilesystemService) ListContent(rel string) ([]ContentFile, error) {
	abs, clean, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := s.ListEntries(clean)
	if err != nil {
		return nil, err
	}

	files := make([]ContentFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDirectory {
			continue
		}
		fileAbs := filepath.Join(abs, entry.Name)
		info, err := os.Stat(fileAbs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, ContentFile{
			Name:     entry.Name,
			Path:     utils.JoinRelativePath(clean, entry.Name),
			Kind:     DetectMediaKind(entry.Name),
			FileStat: statFile(fileAbs, info),
		})
	}
	sortContent(files)
	return files, nil
}

func sortContent(files []ContentFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].BirthtimeSeconds != files[j].BirthtimeSeconds {
			return files[i].BirthtimeSeconds > files[j].BirthtimeSeconds
		}
		return files[i].Name < files[j].Name
	})
}

func (s *FilesystemService) MakeDir(rel string) error {
	abs, _, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func (s *FilesystemService) RemoveDir(rel string) error {
	abs, clean, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("%w: cannot remove the storage root", utils.ErrInvalidPath)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	return nil
}

func (s *FilesystemService) RemoveFile(rel string) error {
	abs, clean, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file %q: %w", clean, utils.ErrNotFound)
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %q is a directory", utils.ErrInvalidArgument, clean)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
