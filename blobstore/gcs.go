package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"hlsworker/config"
	"hlsworker/logger"
)

// GCS stores objects in Google Cloud Storage.
type GCS struct {
	client     *storage.Client
	publicBase string
}

// NewGCS creates a client. Without a credentials file, application default
// credentials are used.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return &GCS{client: client, publicBase: base}, nil
}

func (g *GCS) Download(ctx context.Context, bucket, object, localPath string) error {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, object, ErrNotFound)
		}
		return fmt.Errorf("Object(%q).NewReader: %w", object, err)
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, err)
	}

	logger.Debugf("downloaded gs://%s/%s to %s", bucket, object, localPath)
	return nil
}

func (g *GCS) Upload(ctx context.Context, bucket, object, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	wc := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = ContentType(object)

	if _, err = io.Copy(wc, f); err != nil {
		wc.Close()
		return "", fmt.Errorf("io.Copy: %w", err)
	}
	// Close completes the upload.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Debugf("uploaded object '%s' to bucket '%s'", object, bucket)
	return g.PublicURL(bucket, object), nil
}

func (g *GCS) PublicURL(bucket, object string) string {
	return joinURL(g.publicBase, bucket, object)
}

func (g *GCS) Delete(ctx context.Context, bucket, object string) error {
	if err := g.client.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("Object(%q).Delete: %w", object, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
