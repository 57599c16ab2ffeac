package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path/filepath"
	"time"

	"storylab-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore uploads generated media assets to MinIO and hands back
// presigned URLs the client can fetch directly.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(cfg *config.Config) (*ObjectStore, error) {
	mc, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init failed: %w", err)
	}
	return &ObjectStore{client: mc, bucket: cfg.MinIO.Bucket}, nil
}

// Upload streams reader into the bucket under objectName and returns a
// presigned GET URL. size may be -1 when unknown.
func (s *ObjectStore) Upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("bucket check failed: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("bucket create failed: %w", err)
		}
		log.Printf("bucket %q created", s.bucket)
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".webp":
		contentType = "image/webp"
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, 72*time.Hour, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}
	log.Printf("uploaded %s", objectName)
	return presigned.String(), nil
}
