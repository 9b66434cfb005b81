package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foxzi/relaydesk/internal/models"
)

// SMTPConfigRepository stores one SMTP configuration per project. The
// password column holds whatever the caller passes (sealed by the gate).
type SMTPConfigRepository struct {
	db *sql.DB
}

func NewSMTPConfigRepository(db *sql.DB) *SMTPConfigRepository {
	return &SMTPConfigRepository{db: db}
}

// Upsert replaces the whole record. Last write wins.
func (r *SMTPConfigRepository) Upsert(ctx context.Context, c *models.SMTPConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO smtp_configs (project_id, host, port, secure, username, password, from_email, from_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			secure = excluded.secure,
			username = excluded.username,
			password = excluded.password,
			from_email = excluded.from_email,
			from_name = excluded.from_name,
			updated_at = excluded.updated_at`,
		c.ProjectID, c.Host, c.Port, c.Secure, c.Username, c.Password, c.FromEmail, c.FromName, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save smtp config: %w", err)
	}
	return nil
}

// Get returns the project's configuration, or nil when none is stored
func (r *SMTPConfigRepository) Get(ctx context.Context, projectID string) (*models.SMTPConfig, error) {
	c := &models.SMTPConfig{}
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id, host, port, secure, username, password, from_email, from_name, updated_at
		FROM smtp_configs WHERE project_id = ?`, projectID,
	).Scan(&c.ProjectID, &c.Host, &c.Port, &c.Secure, &c.Username, &c.Password, &c.FromEmail, &c.FromName, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the project's configuration
func (r *SMTPConfigRepository) Delete(ctx context.Context, projectID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM smtp_configs WHERE project_id = ?", projectID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
