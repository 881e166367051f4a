package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/kurin/blazer/b2"

	"mediavault/utils"
)

const mirrorURLExpiry = 24 * time.Hour

type MirrorResult struct {
	ObjectName  string `json:"object_name"`
	Size        int64  `json:"size"`
	SHA1        string `json:"sha1"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Mirror keeps an off-site copy of content files keyed by their relative path.
type Mirror interface {
	Enabled() bool
	Upload(ctx context.Context, relPath, absPath string) (*MirrorResult, error)
	Delete(ctx context.Context, relPath string) error
	DeletePrefix(ctx context.Context, relPath string) (int, error)
}

// NoopMirror is used when no bucket is configured.
type NoopMirror struct{}

func (NoopMirror) Enabled() bool { return false }

func (NoopMirror) Upload(ctx context.Context, relPath, absPath string) (*MirrorResult, error) {
	return nil, nil
}

func (NoopMirror) Delete(ctx context.Context, relPath string) error { return nil }

func (NoopMirror) DeletePrefix(ctx context.Context, relPath string) (int, error) { return 0, nil }

// MirrorService copies files to a Backblaze B2 bucket.
type MirrorService struct {
	client     *b2.Client
	bucketName string
	bucket     *b2.Bucket
}

func NewMirrorService(ctx context.Context, keyID, applicationKey, bucketName string) (*MirrorService, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	return &MirrorService{
		client:     client,
		bucketName: bucketName,
		bucket:     bucket,
	}, nil
}

func (s *MirrorService) Enabled() bool { return true }

func objectName(relPath string) string {
	return "media/" + relPath
}

func (s *MirrorService) Upload(ctx context.Context, relPath, absPath string) (*MirrorResult, error) {
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for mirroring: %w", err)
	}
	defer file.Close()

	name := objectName(relPath)
	writer := s.bucket.Object(name).NewWriter(ctx)
	if contentType := mime.TypeByExtension(filepath.Ext(relPath)); contentType != "" {
		writer = writer.WithAttrs(&b2.Attrs{ContentType: contentType})
	}

	// Stream the file to B2 and the hash at once.
	hasher := sha1.New()
	size, err := io.Copy(io.MultiWriter(writer, hasher), file)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to upload file to B2: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close B2 writer: %w", err)
	}

	result := &MirrorResult{
		ObjectName: name,
		Size:       size,
		SHA1:       hex.EncodeToString(hasher.Sum(nil)),
	}

	url, err := s.bucket.Object(name).AuthURL(ctx, mirrorURLExpiry, "")
	if err != nil {
		utils.LogWarning("Failed to sign mirror URL for %s: %v", name, err)
	} else {
		result.DownloadURL = url.String()
	}
	return result, nil
}

func (s *MirrorService) Delete(ctx context.Context, relPath string) error {
	if err := s.bucket.Object(objectName(relPath)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete file from B2: %w", err)
	}
	return nil
}

// DeletePrefix removes every mirrored object under a folder.
func (s *MirrorService) DeletePrefix(ctx context.Context, relPath string) (int, error) {
	iter := s.bucket.List(ctx, b2.ListPrefix(objectName(relPath)+"/"))

	deleted := 0
	for iter.Next() {
		obj := iter.Object()
		if err := obj.Delete(ctx); err != nil {
			utils.LogWarning("Failed to delete mirrored object %s: %v", obj.Name(), err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to list mirrored objects: %w", err)
	}
	return deleted, nil
}
