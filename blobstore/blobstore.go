// Package blobstore moves files between the local working area and remote
// object storage. Every backend addresses objects by (bucket, object path);
// what a bucket maps to depends on the backend.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"hlsworker/config"
)

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the storage collaborator used by the pipeline. Each call is
// independently fallible.
type Store interface {
	Download(ctx context.Context, bucket, object, localPath string) error
	// Upload overwrites the object and returns its public URL.
	Upload(ctx context.Context, bucket, object, localPath string) (string, error)
	PublicURL(bucket, object string) string
	Delete(ctx context.Context, bucket, object string) error
	Close() error
}

// New builds the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "gcs":
		s, err := NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS store: %w", err)
		}
		return s, nil
	case "s3":
		return NewS3(cfg.S3), nil
	case "sftp":
		s, err := NewSFTP(ctx, cfg.SFTP)
		if err != nil {
			return nil, fmt.Errorf("failed to create SFTP store: %w", err)
		}
		return s, nil
	case "local":
		return NewLocal(cfg.Local.Dir, cfg.Local.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// ContentType returns the MIME type stored alongside HLS artifacts.
func ContentType(object string) string {
	switch strings.ToLower(path.Ext(object)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// joinURL appends escaped path elements to base.
func joinURL(base string, elems ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, elem := range elems {
		for _, seg := range strings.Split(strings.Trim(elem, "/"), "/") {
			if seg == "" {
				continue
			}
			b.WriteByte('/')
			b.WriteString(url.PathEscape(seg))
		}
	}
	return b.String()
}
