// Package storage provides the object storage service backing message
// attachments. Clients upload and download directly via presigned URLs; the
// server never streams file bodies.
package storage

import (
	"context"
	"time"
)

// ServiceConfig holds the settings required to reach the storage backend.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService is the public interface of the attachment store.
type StorageService interface {
	// PresignUpload generates a presigned URL for uploading a file with the
	// declared MIME type and size.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a presigned URL for fetching a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// GetObjectMetadata retrieves the object's content type and length.
	GetObjectMetadata(ctx context.Context, key string) (map[string]string, error)
}

// NewStorageService returns the concrete StorageService for the configuration.
// Only S3-compatible backends are supported.
func NewStorageService(cfg ServiceConfig) (StorageService, error) {
	return newS3Client(cfg)
}
