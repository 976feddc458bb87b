package chatstore

import (
	"testing"

	"commhub/internal/pkg/errs"
)

func TestValidateFileSize(t *testing.T) {
	cases := []struct {
		name     string
		size     int64
		wantCode int
	}{
		{"valid", 1024, 0},
		{"at limit", MaxAttachmentSize, 0},
		{"zero", 0, errs.ErrInvalidParams},
		{"negative", -1, errs.ErrInvalidParams},
		{"over limit", MaxAttachmentSize + 1, errs.ErrFileSizeTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			customErr := ValidateFileSize(tc.size)
			if tc.wantCode == 0 {
				if customErr != nil {
					t.Fatalf("expected no error, got %v", customErr)
				}
				return
			}
			if customErr == nil || customErr.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %v", tc.wantCode, customErr)
			}
		})
	}
}

func TestValidateFileType(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		mimeType string
		wantErr  bool
	}{
		{"png", "photo.png", "image/png", false},
		{"jpeg with jpg ext", "photo.jpg", "image/jpeg", false},
		{"uppercase mime", "photo.PNG", "IMAGE/PNG", false},
		{"mime mismatch", "photo.png", "image/jpeg", true},
		{"disallowed mime", "doc.pdf", "application/pdf", true},
		{"no extension", "photo", "image/png", true},
		{"unknown extension", "photo.tiff", "image/png", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			customErr := ValidateFileType(tc.fileName, tc.mimeType)
			if tc.wantErr && customErr == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && customErr != nil {
				t.Fatalf("expected no error, got %v", customErr)
			}
		})
	}
}

func TestChatTypeValid(t *testing.T) {
	if !ChatTypeIndividual.Valid() || !ChatTypeGroup.Valid() {
		t.Error("known chat types must be valid")
	}
	if ChatType("broadcast").Valid() || ChatType("").Valid() {
		t.Error("unknown chat types must be invalid")
	}
}

func TestMessageStatusValid(t *testing.T) {
	for _, s := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if !s.Valid() {
			t.Errorf("status %q must be valid", s)
		}
	}
	if MessageStatus("archived").Valid() || MessageStatus("").Valid() {
		t.Error("unknown statuses must be invalid")
	}
}
