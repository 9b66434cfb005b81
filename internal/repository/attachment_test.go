package repository

import (
	"context"
	"testing"
	"time"

	"github.com/foxzi/relaydesk/internal/models"
)

func TestAttachmentRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttachmentRepository(db)
	ctx := context.Background()
	p := createTestProject(t, db, "user-1")

	inline := &models.Attachment{
		ID:          "1700000000000_abc123xyz",
		ProjectID:   p.ID,
		Filename:    "hello.txt",
		ContentType: "text/plain",
		Size:        5,
		Content:     []byte("hello"),
		UploadedAt:  time.Now(),
	}
	pointer := &models.Attachment{
		ID:          "1700000000001_def456uvw",
		ProjectID:   p.ID,
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		StoragePath: "attachments/" + p.ID + "/1700000000001_def456uvw",
		UploadedAt:  time.Now(),
	}

	for _, a := range []*models.Attachment{inline, pointer} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.GetByID(ctx, inline.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if string(got.Content) != "hello" {
		t.Errorf("GetByID() Content = %q, want %q", got.Content, "hello")
	}

	got, _ = repo.GetByID(ctx, pointer.ID)
	if got.Inline() {
		t.Error("pointer attachment should not be inline")
	}
	if got.StoragePath != pointer.StoragePath {
		t.Errorf("GetByID() StoragePath = %q, want %q", got.StoragePath, pointer.StoragePath)
	}

	list, err := repo.ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByProject() returned %d, want 2", len(list))
	}
	for _, a := range list {
		if len(a.Content) != 0 {
			t.Error("ListByProject() should not load content")
		}
	}

	if err := repo.Delete(ctx, inline.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, inline.ID)
	if got != nil {
		t.Error("attachment should be gone")
	}
}
