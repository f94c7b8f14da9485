// Package publish uploads Parquet exports to an S3-compatible object store.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
)

const parquetContentType = "application/vnd.apache.parquet"

// Uploader puts a local file into the object store under key.
type Uploader interface {
	Upload(ctx context.Context, key, file string) (int64, error)
}

// Object describes one uploaded file.
type Object struct {
	Key  string
	Size int64
}

// Publisher uploads export results below a key prefix.
type Publisher struct {
	uploader Uploader
	prefix   string
	log      *slog.Logger
}

// New creates a Publisher for the configured MinIO/S3 endpoint. The bucket
// is created if it does not exist.
func New(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.NewMissingField("publish.endpoint")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return NewWithUploader(&minioUploader{client: client, bucket: cfg.Bucket}, cfg.Prefix), nil
}

// NewWithUploader creates a Publisher over any Uploader.
func NewWithUploader(up Uploader, prefix string) *Publisher {
	return &Publisher{
		uploader: up,
		prefix:   prefix,
		log:      logging.Component("publish"),
	}
}

// Key returns the object key for an exported file. Keys mirror the export
// layout below root, under prefix and the store ID.
func (p *Publisher) Key(storeID, root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", fmt.Errorf("%s is not below %s: %w", file, root, err)
	}
	return path.Join(p.prefix, storeID, filepath.ToSlash(rel)), nil
}

// Publish uploads every exported file in results. It stops at the first
// failed upload and returns the objects uploaded before it.
func (p *Publisher) Publish(ctx context.Context, storeID, root string, results []parquet.Result) ([]Object, error) {
	objects := make([]Object, 0, len(results))

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return objects, err
		}

		key, err := p.Key(storeID, root, r.Path)
		if err != nil {
			return objects, err
		}

		size, err := p.uploader.Upload(ctx, key, r.Path)
		if err != nil {
			return objects, fmt.Errorf("upload %s: %w", key, err)
		}

		p.log.Info("published", "table", r.Table.String(), "key", key, "bytes", size)
		objects = append(objects, Object{Key: key, Size: size})
	}
	return objects, nil
}

type minioUploader struct {
	client *minio.Client
	bucket string
}

func (u *minioUploader) Upload(ctx context.Context, key, file string) (int64, error) {
	info, err := u.client.FPutObject(ctx, u.bucket, key, file, minio.PutObjectOptions{
		ContentType: parquetContentType,
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}
