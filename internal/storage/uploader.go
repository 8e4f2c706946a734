// Package storage uploads result documents to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the uploader connection and object naming.
type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PathPrefix string
}

// Uploader stores JSON documents under a path prefix with a timestamp.
type Uploader struct {
	client *minio.Client
	logger *slog.Logger
	bucket string
	prefix string
}

// NewUploader creates a new Uploader.
func NewUploader(logger *slog.Logger, opts Options) (*Uploader, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Uploader{
		client: client,
		logger: logger,
		bucket: opts.Bucket,
		prefix: opts.PathPrefix,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", u.bucket, err)
		}
	}
	return nil
}

// UploadJSON stores a document as `<prefix><label>_<timestamp>.json` and
// returns the stored object path.
func (u *Uploader) UploadJSON(ctx context.Context, label string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	objectName := u.objectName(label)
	return u.put(ctx, objectName, body)
}

// UploadFile stores an existing local JSON file (e.g. an audit file) under
// the configured prefix.
func (u *Uploader) UploadFile(ctx context.Context, path string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return u.put(ctx, u.objectName(label), body)
}

func (u *Uploader) put(ctx context.Context, objectName string, body []byte) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, objectName,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	u.logger.Info("Uploaded document", "bucket", u.bucket, "object", objectName)
	return objectName, nil
}

func (u *Uploader) objectName(label string) string {
	ts := time.Now().UTC().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s%s_%s.json", u.prefix, label, ts)
}
