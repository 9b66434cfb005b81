package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Sentinel errors for blob operations.
var (
	ErrNotFound       = errors.New("blob: not found")
	ErrAccessDenied   = errors.New("blob: access denied")
	ErrUploadFailed   = errors.New("blob: upload failed")
	ErrDeleteFailed   = errors.New("blob: delete failed")
	ErrInvalidConfig  = errors.New("blob: invalid configuration")
	ErrInvalidURL     = errors.New("blob: invalid URL")
	ErrDownloadFailed = errors.New("blob: download failed")
	ErrTooLarge       = errors.New("blob: object exceeds size limit")
)

// Store keeps attachment bytes addressed by key.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentKey returns the storage key for an attachment.
// Format: attachments/{projectID}/{attachmentID}
func AttachmentKey(projectID, attachmentID string) string {
	return path.Join("attachments", sanitizeSegment(projectID), sanitizeSegment(attachmentID))
}

func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}
