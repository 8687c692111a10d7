package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/starkbot-labs/media-gateway/internal/config"
)

// Store is the artifact store: write-once blobs addressed by key, served to
// clients through a public URL.
type Store interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	cdnURL   string
}

func NewS3Store(cfg *config.Config) *S3Store {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.S3Bucket,
		cdnURL:   strings.TrimSuffix(cfg.S3CDNURL, "/"),
	}
}

// Upload writes the object publicly readable and returns its CDN URL.
func (s *S3Store) Upload(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return s.cdnURL + "/" + key, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// Ping verifies the bucket is reachable, for the health probe.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket unreachable: %w", err)
	}
	return nil
}
