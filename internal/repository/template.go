package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/relaydesk/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

const templateColumns = `id, project_id, name, type, subject, content, variables, trigger_route, attachments, created_at, updated_at`

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template
func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	return insertTemplate(ctx, r.db, t)
}

func insertTemplate(ctx context.Context, db execer, t *models.Template) error {
	t.ID = uuid.New().String()
	if t.Type == "" {
		t.Type = models.TemplateTypeEmail
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	variables, attachments, err := encodeTemplateLists(t)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.Type, t.Subject, t.Content, variables, t.TriggerRoute, attachments, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// GetByRoute returns the project's template bound to a trigger route
func (r *TemplateRepository) GetByRoute(ctx context.Context, projectID, route string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE project_id = ? AND trigger_route = ?
		ORDER BY created_at LIMIT 1`, projectID, route)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// List returns templates with optional filtering
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateListFilter) ([]models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE 1=1`
	args := []any{}

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Search != "" {
		query += " AND (name LIKE ? OR subject LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY created_at, name"

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

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// Update replaces the mutable fields. ID, project and creation time are kept.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	t.UpdatedAt = time.Now()

	variables, attachments, err := encodeTemplateLists(t)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, type = ?, subject = ?, content = ?, variables = ?, trigger_route = ?, attachments = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Type, t.Subject, t.Content, variables, t.TriggerRoute, attachments, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireAffected(res)
}

// Delete deletes a template permanently. Referenced attachments are kept.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanTemplate(row scanner) (*models.Template, error) {
	t := &models.Template{}
	var variables, attachments string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Type, &t.Subject, &t.Content,
		&variables, &t.TriggerRoute, &attachments, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variables), &t.Variables); err != nil {
		return nil, fmt.Errorf("decode template variables: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(attachments), &ids); err != nil {
		return nil, fmt.Errorf("decode template attachments: %w", err)
	}
	t.Attachments = make([]models.AttachmentRef, 0, len(ids))
	for _, id := range ids {
		t.Attachments = append(t.Attachments, models.RefByID(id))
	}
	if t.Variables == nil {
		t.Variables = []string{}
	}
	return t, nil
}

// encodeTemplateLists serializes variables and attachment ids. Only ids are
// persisted for attachments.
func encodeTemplateLists(t *models.Template) (string, string, error) {
	vars := t.Variables
	if vars == nil {
		vars = []string{}
	}
	variables, err := json.Marshal(vars)
	if err != nil {
		return "", "", fmt.Errorf("encode template variables: %w", err)
	}

	attachments, err := json.Marshal(t.AttachmentIDs())
	if err != nil {
		return "", "", fmt.Errorf("encode template attachments: %w", err)
	}
	return string(variables), string(attachments), nil
}
