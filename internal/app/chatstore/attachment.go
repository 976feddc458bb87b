package chatstore

import (
	"path/filepath"
	"strings"
	"time"

	"commhub/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed attachment size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed attachment size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// MaxAttachmentsCount is the maximum number of attachments per message.
	MaxAttachmentsCount = 3

	// PresignedURLDuration is how long a presigned upload/download URL stays valid.
	PresignedURLDuration = 5 * time.Minute
)

// Attachment describes one file attached to a message. Key is the object
// storage key the client uploaded to via a presigned URL.
type Attachment struct {
	Key      string `json:"fileKey"`
	Name     string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"fileSize"`
}

// AllowedMIMETypes is the set of permitted attachment MIME types.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// extToMIME maps file extensions to their expected MIME type.
var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ValidateFileSize checks that the declared file size is positive and within limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the file name extension and MIME type agree
// and are both allowed.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrAttachmentInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" || len(ext) < 2 {
		return errs.NewError(errs.ErrAttachmentInvalid)
	}

	expectedMIME, ok := extToMIME[ext]
	if !ok {
		return errs.NewError(errs.ErrAttachmentInvalid)
	}

	if expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrAttachmentInvalid)
	}

	return nil
}
