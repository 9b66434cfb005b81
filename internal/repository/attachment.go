package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foxzi/relaydesk/internal/models"
)

const attachmentColumns = `id, project_id, filename, content_type, size, content, storage_path, download_url, uploaded_at`

// AttachmentRepository stores attachment metadata and, for the inline
// backend, the bytes themselves.
type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts an attachment. The caller assigns the ID.
func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Filename, a.ContentType, a.Size, a.Content, a.StoragePath, a.DownloadURL, a.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// GetByID returns an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListByProject returns a project's attachments without inline content.
func (r *AttachmentRepository) ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, filename, content_type, size, NULL, storage_path, download_url, uploaded_at
		FROM attachments WHERE project_id = ? ORDER BY uploaded_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, *a)
	}
	return attachments, rows.Err()
}

// Delete deletes attachment metadata
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanAttachment(row scanner) (*models.Attachment, error) {
	a := &models.Attachment{}
	err := row.Scan(&a.ID, &a.ProjectID, &a.Filename, &a.ContentType, &a.Size, &a.Content,
		&a.StoragePath, &a.DownloadURL, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}
