package models

import (
	"strings"
	"time"
)

const (
	TemplateTypeEmail        = "email"
	TemplateTypeNotification = "notification"
	TemplateTypeForm         = "form"
)

type Template struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Subject      string          `json:"subject,omitempty"`
	Content      string          `json:"content"`
	Variables    []string        `json:"variables"`
	TriggerRoute string          `json:"trigger_route,omitempty"`
	Attachments  []AttachmentRef `json:"attachments"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasTriggerRoute reports whether sends address the template by route.
func (t *Template) HasTriggerRoute() bool {
	return strings.TrimSpace(t.TriggerRoute) != ""
}

// AttachmentIDs returns the ids of the referenced attachments.
func (t *Template) AttachmentIDs() []string {
	ids := make([]string, 0, len(t.Attachments))
	for _, ref := range t.Attachments {
		if id := ref.RefID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ValidTemplateType reports whether s is a known template type.
func ValidTemplateType(s string) bool {
	switch s {
	case TemplateTypeEmail, TemplateTypeNotification, TemplateTypeForm:
		return true
	}
	return false
}

// TemplateListFilter for filtering template list
type TemplateListFilter struct {
	ProjectID string
	Search    string
	Type      string
	Limit     int
	Offset    int
}
