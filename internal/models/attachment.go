package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Attachment is an uploaded file. Content is either held inline or behind a
// pointer (StoragePath into the blob store, DownloadURL for remote fetch).
type Attachment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Content     []byte    `json:"content,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	DownloadURL string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Inline reports whether the bytes are stored with the record.
func (a *Attachment) Inline() bool {
	return len(a.Content) > 0
}

// AttachmentRef points at an attachment either by id or with the full record.
// In JSON it is a bare string id or an attachment object.
type AttachmentRef struct {
	ID         string
	Attachment *Attachment
}

// RefByID creates an unresolved reference.
func RefByID(id string) AttachmentRef {
	return AttachmentRef{ID: id}
}

// RefFull creates a resolved reference.
func RefFull(a *Attachment) AttachmentRef {
	return AttachmentRef{ID: a.ID, Attachment: a}
}

// Resolved reports whether the full record is present.
func (r AttachmentRef) Resolved() bool {
	return r.Attachment != nil
}

// RefID returns the attachment id regardless of form.
func (r AttachmentRef) RefID() string {
	if r.Attachment != nil && r.Attachment.ID != "" {
		return r.Attachment.ID
	}
	return r.ID
}

func (r AttachmentRef) MarshalJSON() ([]byte, error) {
	if r.Attachment != nil {
		return json.Marshal(r.Attachment)
	}
	return json.Marshal(r.ID)
}

func (r *AttachmentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("attachment reference is empty")
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = AttachmentRef{ID: id}
		return nil
	}

	var a Attachment
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = AttachmentRef{ID: a.ID, Attachment: &a}
	return nil
}
