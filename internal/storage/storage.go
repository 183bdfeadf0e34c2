package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Client wraps a bucket on an S3-compatible endpoint.
type Client struct {
	Endpoint string
	Bucket   string
	Minio    *minio.Client
}

// NewClient creates an S3 client for the given endpoint and bucket.
func NewClient(endpoint, accessKeyID, secretKey, bucket string, useSSL bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &Client{
		Endpoint: endpoint,
		Bucket:   bucket,
		Minio:    client,
	}, nil
}

// ExportStore archives measurement history exports and mints share
// links for them.
type ExportStore struct {
	client *Client
	log    *logrus.Entry
}

// NewExportStore creates an export archive backed by client.
func NewExportStore(client *Client, log *logrus.Logger) *ExportStore {
	return &ExportStore{
		client: client,
		log:    log.WithField("component", "storage"),
	}
}

// EnsureBucket creates the configured bucket when it does not exist
// yet.
func (s *ExportStore) EnsureBucket(ctx context.Context) error {
	if s.client == nil || s.client.Minio == nil {
		return fmt.Errorf("s3 client not initialized")
	}

	exists, err := s.client.Minio.BucketExists(ctx, s.client.Bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.Minio.MakeBucket(ctx, s.client.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("s3 make bucket: %w", err)
	}
	s.log.WithField("bucket", s.client.Bucket).Info("created export bucket")
	return nil
}

// PutExport uploads one export document under key.
func (s *ExportStore) PutExport(ctx context.Context, key, contentType string, data []byte) error {
	if s.client == nil || s.client.Minio == nil {
		return fmt.Errorf("s3 client not initialized")
	}

	reader := bytes.NewReader(data)
	size := int64(len(data))

	_, err := s.client.Minio.PutObject(
		ctx,
		s.client.Bucket,
		key,
		reader,
		size,
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"key":   key,
		"bytes": size,
	}).Info("archived export")
	return nil
}

// ShareURL returns a presigned download link for an archived export.
func (s *ExportStore) ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.client == nil || s.client.Minio == nil {
		return "", fmt.Errorf("s3 client not initialized")
	}

	reqParams := url.Values{}

	presignedURL, err := s.client.Minio.PresignedGetObject(ctx, s.client.Bucket, key, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return presignedURL.String(), nil
}

// ExportKey builds the archive key for an export generated at the
// given time.
func ExportKey(format string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("exports/%s/speedtest-history-%s.%s",
		t.Format("2006/01/02"), t.Format("20060102T150405Z"), format)
}
