package utils

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// ValidateFolderName checks a single path segment supplied by a user.
func ValidateFolderName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: folder name cannot be empty", ErrInvalidArgument)
	}

	if len(name) > 255 {
		return fmt.Errorf("%w: folder name too long (max 255 characters)", ErrInvalidArgument)
	}

	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: folder name contains invalid UTF-8 characters", ErrInvalidArgument)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("%w: folder name cannot be %q", ErrInvalidPath, name)
	}

	invalidChars := []string{"/", "\\", "\x00"}
	for _, char := range invalidChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("%w: folder name contains invalid character %q", ErrInvalidArgument, char)
		}
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: folder name cannot start with a dot", ErrInvalidArgument)
	}

	return nil
}

// NormalizeRelativePath turns a user supplied path into the canonical form
// stored on Folder records: slash separated, no leading or trailing slash,
// no empty or "." segments. The root is the empty string and a leading slash
// is read relative to it. Any ".." segment or NUL byte is rejected with
// ErrInvalidPath.
func NormalizeRelativePath(p string) (string, error) {
	if p == "" || p == "/" {
		return "", nil
	}

	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrInvalidPath)
	}

	if !utf8.ValidString(p) {
		return "", fmt.Errorf("%w: path contains invalid UTF-8", ErrInvalidPath)
	}

	p = strings.ReplaceAll(p, "\\", "/")

	segments := strings.Split(p, "/")
	clean := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch segment {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: path cannot contain '..'", ErrInvalidPath)
		}
		clean = append(clean, segment)
	}

	return strings.Join(clean, "/"), nil
}

// JoinRelativePath joins a normalised parent path and a child name.
func JoinRelativePath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ParentPath returns the normalised parent of p; the parent of a top-level
// path is the root.
func ParentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// PathSegments splits a normalised path; the root has no segments.
func PathSegments(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
