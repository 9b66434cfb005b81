package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/relaydesk/internal/models"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts the project together with its seed templates in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, p *models.Project, seeds []*models.Template) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p.ID = uuid.New().String()
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Description, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	for _, t := range seeds {
		t.ProjectID = p.ID
		if err := insertTemplate(ctx, tx, t); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID returns a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, status, created_at, updated_at
		FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns projects, newest first
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectListFilter) ([]models.Project, error) {
	query := `
		SELECT id, user_id, name, description, status, created_at, updated_at
		FROM projects WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Update updates name, description and status
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Status, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireAffected(res)
}

// Delete deletes a project; templates, attachments and SMTP settings cascade
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
