package models

import "time"

const (
	ProjectStatusActive   = "active"
	ProjectStatusInactive = "inactive"
)

type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectListFilter for filtering project list
type ProjectListFilter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}
