// Package s3 implements the sync backend over S3-compatible object
// storage. The snapshot is a single object under a fixed key.
//
// Object storage has no compare-and-swap across the download-merge-
// reupload cycle; two devices writing at once can race in the window
// between GetObject and PutObject. That is a documented limitation of
// blob backends, mitigated upstream by the single-sync scheduler.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/okayu/mangasync/internal/snapshot"
)

// Config holds connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	Bucket    string
	ObjectKey string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Client implements storage.Backend over minio-go.
type Client struct {
	mc        *minio.Client
	bucket    string
	objectKey string
}

// NewClient creates an S3 sync backend.
func NewClient(cfg Config) (*Client, error) {
	// Minio expects the endpoint without a scheme
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		mc:        mc,
		bucket:    cfg.Bucket,
		objectKey: cfg.ObjectKey,
	}, nil
}

// EnsureBucket creates the configured bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", c.bucket, err)
	}
	return nil
}

// Download retrieves the remote snapshot, or (nil, nil) when the object
// does not exist yet.
func (c *Client) Download(ctx context.Context) (*snapshot.Snapshot, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, c.objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", c.objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read object %q: %w", c.objectKey, err)
	}

	return snapshot.Decode(data)
}

// Upload replaces the remote snapshot object.
func (c *Client) Upload(ctx context.Context, snap *snapshot.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}

	_, err = c.mc.PutObject(ctx, c.bucket, c.objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", c.objectKey, err)
	}
	return nil
}

// isNotFound detects the NoSuchKey error responses minio surfaces on
// reads of missing objects.
func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
