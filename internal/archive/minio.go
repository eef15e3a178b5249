// Package archive keeps a copy of every uploaded question image in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewrelay/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Store archives images in a MinIO (or any S3-compatible) bucket.
type Store struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// New connects to MinIO and creates the bucket when it does not exist yet.
func New(ctx context.Context, cfg config.MinioConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: cli, bucket: cfg.Bucket, now: time.Now}, nil
}

// Put uploads data and returns the object URL.
func (s *Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := ObjectKey(s.now(), uuid.New(), contentType)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucket, key), nil
}

// ObjectKey builds questions/<yyyy>/<mm>/<id><ext>. Unknown content types get no extension.
func ObjectKey(t time.Time, id uuid.UUID, contentType string) string {
	return fmt.Sprintf("questions/%04d/%02d/%s%s", t.Year(), int(t.Month()), id, extensions[contentType])
}
