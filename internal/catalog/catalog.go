// Package catalog manages projects and their templates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/render"
	"github.com/foxzi/relaydesk/internal/repository"
)

// ProjectStore persists projects. GetByID returns nil, nil when absent.
type ProjectStore interface {
	Create(ctx context.Context, p *models.Project, seeds []*models.Template) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectListFilter) ([]models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	Delete(ctx context.Context, id string) error
}

// TemplateStore persists templates. Lookups return nil, nil when absent.
type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetByRoute(ctx context.Context, projectID, route string) (*models.Template, error)
	List(ctx context.Context, filter models.TemplateListFilter) ([]models.Template, error)
	Update(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id string) error
}

// ProjectInput is the writable part of a project.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// TemplateInput is the writable part of a template.
type TemplateInput struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Subject      string                 `json:"subject"`
	Content      string                 `json:"content"`
	Variables    []string               `json:"variables"`
	TriggerRoute string                 `json:"trigger_route"`
	Attachments  []models.AttachmentRef `json:"attachments"`
}

// Service implements project and template operations. A non-empty userID
// restricts every call to projects owned by that user.
type Service struct {
	projects  ProjectStore
	templates TemplateStore
	logger    *slog.Logger
}

// NewService creates a catalog service.
func NewService(projects ProjectStore, templates TemplateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		projects:  projects,
		templates: templates,
		logger:    logger,
	}
}

// CreateProject creates a project seeded with the default templates.
func (s *Service) CreateProject(ctx context.Context, userID string, in ProjectInput) (*models.Project, error) {
	if err := validateProject(&in); err != nil {
		return nil, err
	}

	p := &models.Project{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
	}
	seeds := DefaultTemplates()
	if err := s.projects.Create(ctx, p, seeds); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", p.ID, "user_id", userID, "templates", len(seeds))
	return p, nil
}

// GetProject returns a project visible to userID.
func (s *Service) GetProject(ctx context.Context, userID, id string) (*models.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if p == nil || (userID != "" && p.UserID != userID) {
		return nil, apperr.NotFound("project", id)
	}
	return p, nil
}

// ListProjects returns the user's projects.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	return s.projects.List(ctx, models.ProjectListFilter{UserID: userID})
}

// UpdateProject replaces name, description and status.
func (s *Service) UpdateProject(ctx context.Context, userID, id string, in ProjectInput) (*models.Project, error) {
	p, err := s.GetProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateProject(&in); err != nil {
		return nil, err
	}

	p.Name = in.Name
	p.Description = in.Description
	p.Status = in.Status
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, notFoundOnNoRows(err, "project", id)
	}
	return p, nil
}

// DeleteProject removes a project with its templates, attachments and SMTP
// configuration.
func (s *Service) DeleteProject(ctx context.Context, userID, id string) error {
	if _, err := s.GetProject(ctx, userID, id); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return notFoundOnNoRows(err, "project", id)
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// CreateTemplate adds a template to a project.
func (s *Service) CreateTemplate(ctx context.Context, userID, projectID string, in TemplateInput) (*models.Template, error) {
	if _, err := s.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := s.normalizeTemplate(ctx, projectID, "", &in); err != nil {
		return nil, err
	}

	t := &models.Template{ProjectID: projectID}
	apply(t, in)
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("template created", "template_id", t.ID, "project_id", projectID, "name", t.Name)
	return t, nil
}

// GetTemplate returns a template whose project is visible to userID.
func (s *Service) GetTemplate(ctx context.Context, userID, id string) (*models.Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if t == nil {
		return nil, apperr.NotFound("template", id)
	}
	if userID != "" {
		if _, err := s.GetProject(ctx, userID, t.ProjectID); err != nil {
			return nil, apperr.NotFound("template", id)
		}
	}
	return t, nil
}

// GetTemplateByRoute returns the project's template bound to route.
func (s *Service) GetTemplateByRoute(ctx context.Context, projectID, route string) (*models.Template, error) {
	route = normalizeRoute(route)
	t, err := s.templates.GetByRoute(ctx, projectID, route)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if t == nil {
		return nil, apperr.NotFound("template with route", route)
	}
	return t, nil
}

// ListTemplates returns a project's templates.
func (s *Service) ListTemplates(ctx context.Context, userID string, filter models.TemplateListFilter) ([]models.Template, error) {
	if _, err := s.GetProject(ctx, userID, filter.ProjectID); err != nil {
		return nil, err
	}
	return s.templates.List(ctx, filter)
}

// UpdateTemplate replaces the mutable fields. ID, project and creation time
// never change.
func (s *Service) UpdateTemplate(ctx context.Context, userID, id string, in TemplateInput) (*models.Template, error) {
	t, err := s.GetTemplate(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.normalizeTemplate(ctx, t.ProjectID, t.ID, &in); err != nil {
		return nil, err
	}

	apply(t, in)
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, notFoundOnNoRows(err, "template", id)
	}

	s.logger.Info("template updated", "template_id", t.ID, "project_id", t.ProjectID)
	return t, nil
}

// DeleteTemplate removes a template. Attachments it referenced are kept.
func (s *Service) DeleteTemplate(ctx context.Context, userID, id string) error {
	t, err := s.GetTemplate(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		return notFoundOnNoRows(err, "template", id)
	}
	s.logger.Info("template deleted", "template_id", id, "project_id", t.ProjectID)
	return nil
}

// MigratePlaceholders rewrites {{name}} placeholders to {name} in every
// template of the project, or of all projects when projectID is empty.
// It returns the number of templates changed.
func (s *Service) MigratePlaceholders(ctx context.Context, projectID string) (int, error) {
	templates, err := s.templates.List(ctx, models.TemplateListFilter{ProjectID: projectID})
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range templates {
		t := &templates[i]
		subject := render.MigrateDoubleBraces(t.Subject)
		content := render.MigrateDoubleBraces(t.Content)
		if subject == t.Subject && content == t.Content {
			continue
		}

		t.Subject = subject
		t.Content = content
		if err := s.templates.Update(ctx, t); err != nil {
			return changed, fmt.Errorf("failed to migrate template %s: %w", t.ID, err)
		}
		changed++
		s.logger.Info("template placeholders migrated", "template_id", t.ID, "project_id", t.ProjectID)
	}
	return changed, nil
}

func validateProject(in *ProjectInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.Validation("project name is required")
	}
	switch in.Status {
	case "":
		in.Status = models.ProjectStatusActive
	case models.ProjectStatusActive, models.ProjectStatusInactive:
	default:
		return apperr.Validation("invalid status: %s", in.Status)
	}
	return nil
}

// normalizeTemplate validates in and fills derived fields. selfID is the
// template being updated, empty on create.
func (s *Service) normalizeTemplate(ctx context.Context, projectID, selfID string, in *TemplateInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperr.Validation("template name is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperr.Validation("template content is required")
	}

	if in.Type == "" {
		in.Type = models.TemplateTypeEmail
	}
	if !models.ValidTemplateType(in.Type) {
		return apperr.Validation("invalid template type: %s", in.Type)
	}

	in.TriggerRoute = normalizeRoute(in.TriggerRoute)
	if in.TriggerRoute != "" {
		if strings.ContainsAny(in.TriggerRoute, " ?#") {
			return apperr.Validation("invalid trigger route: %s", in.TriggerRoute)
		}
		other, err := s.templates.GetByRoute(ctx, projectID, in.TriggerRoute)
		if err != nil {
			return err
		}
		if other != nil && other.ID != selfID {
			return apperr.Validation("trigger route %s is already used by template %q", in.TriggerRoute, other.Name)
		}
	}

	if len(in.Variables) == 0 {
		in.Variables = render.Placeholders(in.Subject + "\n" + in.Content)
	}
	in.Variables = render.Dedupe(in.Variables)
	for _, name := range in.Variables {
		if !render.ValidName(name) {
			return apperr.Validation("invalid variable name %q: use letters, digits and underscores, not starting with a digit", name)
		}
	}

	refs := make([]models.AttachmentRef, 0, len(in.Attachments))
	seen := make(map[string]bool, len(in.Attachments))
	for _, ref := range in.Attachments {
		id := ref.RefID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, models.RefByID(id))
	}
	in.Attachments = refs
	return nil
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route != "" && !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func apply(t *models.Template, in TemplateInput) {
	t.Name = in.Name
	t.Type = in.Type
	t.Subject = in.Subject
	t.Content = in.Content
	t.Variables = in.Variables
	t.TriggerRoute = in.TriggerRoute
	t.Attachments = in.Attachments
}

func notFoundOnNoRows(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNoRows) {
		return apperr.NotFound(resource, id)
	}
	return err
}
