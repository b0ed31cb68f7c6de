package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"hlsworker/logger"
)

// Local keeps objects in a directory tree, {root}/{bucket}/{object}. The
// tree can be served directly over HTTP, which is how publicBase is meant
// to be used.
type Local struct {
	root       string
	publicBase string
}

func NewLocal(root, publicBase string) *Local {
	return &Local{root: root, publicBase: publicBase}
}

// Root returns the directory objects are stored under.
func (l *Local) Root() string { return l.root }

func (l *Local) path(bucket, object string) (string, error) {
	p := filepath.Join(l.root, bucket, filepath.FromSlash(object))
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object path %q escapes the store root", object)
	}
	return p, nil
}

func (l *Local) Download(ctx context.Context, bucket, object, localPath string) error {
	src, err := l.path(bucket, object)
	if err != nil {
		return err
	}
	if err := copyFile(src, localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s/%s: %w", bucket, object, ErrNotFound)
		}
		return err
	}
	return nil
}

func (l *Local) Upload(ctx context.Context, bucket, object, localPath string) (string, error) {
	dst, err := l.path(bucket, object)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", err
	}

	logger.Debugf("saved file '%s' to '%s'", object, dst)
	return l.PublicURL(bucket, object), nil
}

func (l *Local) PublicURL(bucket, object string) string {
	if l.publicBase == "" {
		abs, err := filepath.Abs(filepath.Join(l.root, bucket, filepath.FromSlash(object)))
		if err != nil {
			return ""
		}
		return "file://" + filepath.ToSlash(abs)
	}
	return joinURL(l.publicBase, bucket, object)
}

func (l *Local) Delete(ctx context.Context, bucket, object string) error {
	p, err := l.path(bucket, object)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", p, err)
	}
	return nil
}

func (l *Local) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to write to file %s: %w", dst, err)
	}
	return out.Close()
}
