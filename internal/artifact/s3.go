package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store persists artifacts to an S3 bucket/prefix. A PutObject-based
// write is already atomic from a reader's perspective (an in-progress
// upload never appears under its final key), so WriteFile and WriteZip
// both upload straight to their final key rather than a temp-then-rename
// pair; Finalize is a no-op for the same reason.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
}

// NewS3Store creates an S3Store for bucket/prefix in region.
func NewS3Store(ctx context.Context, bucket, prefix, region string, logger *slog.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger.With("component", "artifact-s3", "bucket", bucket),
	}, nil
}

func (s *S3Store) key(jobID, relPath string) string {
	return path.Join(s.prefix, jobID, relPath)
}

func (s *S3Store) WriteFile(ctx context.Context, jobID, relPath string, r io.Reader) error {
	key := s.key(jobID, relPath)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   r,
	}); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) ReadFile(ctx context.Context, jobID, relPath string) (io.ReadCloser, error) {
	key := s.key(jobID, relPath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Finalize(_ context.Context, _ string) error {
	return nil
}

func (s *S3Store) WriteZip(ctx context.Context, jobID, finalName string, r io.Reader) error {
	return s.WriteFile(ctx, jobID, finalName, r)
}
