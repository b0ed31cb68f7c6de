package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"hlsworker/config"
	"hlsworker/logger"
)

// S3 stores objects in an S3-compatible bucket using static credentials.
type S3 struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	region     string
	publicBase string
}

// NewS3 creates an S3 client. A custom endpoint switches to path-style
// addressing, which most S3-compatible servers expect.
func NewS3(cfg config.S3Config) *S3 {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)

	return &S3{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		region:     cfg.Region,
		publicBase: cfg.PublicBaseURL,
	}
}

func (s *S3) Download(ctx context.Context, bucket, object, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	closeErr := f.Close()
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("s3://%s/%s: %w", bucket, object, ErrNotFound)
		}
		return fmt.Errorf("failed to download object %s from bucket %s: %w", object, bucket, err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, closeErr)
	}

	logger.Debugf("downloaded s3://%s/%s to %s", bucket, object, localPath)
	return nil
}

func (s *S3) Upload(ctx context.Context, bucket, object, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(object),
		Body:        f,
		ContentType: aws.String(ContentType(object)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", object, bucket, err)
	}

	logger.Debugf("uploaded object '%s' to bucket '%s'", object, bucket)
	return s.PublicURL(bucket, object), nil
}

func (s *S3) PublicURL(bucket, object string) string {
	if s.publicBase != "" {
		return joinURL(s.publicBase, bucket, object)
	}
	return joinURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, s.region), object)
}

func (s *S3) Delete(ctx context.Context, bucket, object string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", object, bucket, err)
	}
	return nil
}

func (s *S3) Close() error { return nil }
