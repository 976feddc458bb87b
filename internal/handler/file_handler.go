package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"commhub/internal/app/chatstore"
	"commhub/internal/app/storage"
	"commhub/internal/pkg/auth/jwt"
	"commhub/internal/pkg/errs"
	"commhub/internal/pkg/logx"
	"commhub/internal/pkg/req"
	"commhub/internal/pkg/resp"
)

// PresignUploadInput is the request body for requesting an upload URL.
type PresignUploadInput struct {
	ChatID   string `json:"chatId"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// PresignUploadResponse carries the upload URL and the key the client must
// reference in the message attachment.
type PresignUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
}

// HandlePresignUpload validates the declared file and returns a short-lived
// presigned upload URL. The object key is scoped to the chat so cleanup can
// operate per conversation.
func HandlePresignUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ChatID == "" || input.FileName == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := chatstore.ValidateFileType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := chatstore.ValidateFileSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ext := strings.ToLower(filepath.Ext(input.FileName))
		fileKey := fmt.Sprintf("%s/%s%s", input.ChatID, uuid.NewString(), ext)

		uploadURL, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			strings.ToLower(input.MimeType),
			input.FileSize,
			chatstore.PresignedURLDuration,
		)
		if err != nil {
			logx.Error(err, "Error generating presigned upload URL", "file_key", fileKey)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, PresignUploadResponse{
			UploadURL: uploadURL,
			FileKey:   fileKey,
		})
	}
}

// PresignDownloadResponse carries the download URL for a stored attachment.
type PresignDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// HandlePresignDownload checks that the object exists and returns a
// short-lived presigned download URL for it.
func HandlePresignDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("fileKey")
		if fileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if _, err := deps.StorageService.GetObjectMetadata(r.Context(), fileKey); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentInvalid))
				return
			}
			logx.Error(err, "Error checking attachment metadata", "file_key", fileKey)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		downloadURL, err := deps.StorageService.PresignDownload(r.Context(), fileKey, chatstore.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "Error generating presigned download URL", "file_key", fileKey)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, PresignDownloadResponse{DownloadURL: downloadURL})
	}
}
