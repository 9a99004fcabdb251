// Copyright 2025 James Ross
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/filevault/dedup-backend/internal/config"
)

// Store is the object store consumer interface: the Deduplication Engine
// (C6) reads object bytes through it, for both hashing and embedding, rather
// than talking to S3 directly.
type Store interface {
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

// S3Store is the Store implementation backed by aws-sdk-go, following the
// teacher's S3 exporter init pattern (custom endpoint support for
// S3-compatible stores like MinIO).
type S3Store struct {
	client *s3.S3
	bucket string
}

func NewS3Store(cfg *config.ObjectStore) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(cfg.UsePathStyle)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

func (s *S3Store) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer out.Body.Close()

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("read object %q: %w", objectKey, err)
	}
	return buf.Bytes(), nil
}
